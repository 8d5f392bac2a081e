package config

// MinioConfig 审核通过后归档文件使用的 MinIO 桶
type MinioConfig struct {
	AccessKey  string `yaml:"accessKey" envconfig:"ACCESS_KEY"`
	SecretKey  string `yaml:"secretKey" envconfig:"SECRET_KEY"`
	Endpoint   string `yaml:"endpoint" envconfig:"ENDPOINT"`
	UseSSL     bool   `yaml:"useSSL" envconfig:"USE_SSL"`
	Region     string `yaml:"region" envconfig:"REGION"`
	BucketName string `yaml:"bucketName" envconfig:"BUCKET_NAME"`
}
