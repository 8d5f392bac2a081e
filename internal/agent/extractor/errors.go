package extractor

import "errors"

// ErrExtraction LLM 调用失败，元数据抽取是必需步骤
var ErrExtraction = errors.New("metadata extraction failed")
