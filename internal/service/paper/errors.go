package paper

import (
	"errors"

	"github.com/feichai0017/paper-processor/internal/gateway"
	"github.com/feichai0017/paper-processor/internal/utils/validator"
	"github.com/feichai0017/paper-processor/pkg/queue"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrStateConflict = errors.New("task is not in the required state")
	ErrPersistence   = gateway.ErrPersistence
	ErrInvalidFile   = validator.ErrInvalidFile
	ErrOverloaded    = queue.ErrOverloaded
)
