package config

// S3Config 审核通过后归档文件使用的 S3 桶，Endpoint 为空时使用 AWS 默认地址
type S3Config struct {
	BucketName string `yaml:"bucketName" envconfig:"BUCKET_NAME"`
	Region     string `yaml:"region" envconfig:"REGION"`
	Endpoint   string `yaml:"endpoint" envconfig:"ENDPOINT"`
	AccessKey  string `yaml:"accessKey" envconfig:"ACCESS_KEY"`
	SecretKey  string `yaml:"secretKey" envconfig:"SECRET_KEY"`
}
