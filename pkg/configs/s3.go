package configs

import "github.com/spf13/viper"

// S3Config 对象存储（MinIO 兼容）配置. Bucket 是上传源桶，也是分析结果 sidecar 所在的桶.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"          rule:"required"` // host:port，可带 http(s):// 前缀
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"            rule:"required,min=3,max=63"`
	EnsureBucket    bool   `mapstructure:"ensure_bucket"` // 启动时不存在则创建
}

func (c *S3Config) setDefaults(v *viper.Viper) {
	v.SetDefault("s3.endpoint", "localhost:9000")
	v.SetDefault("s3.access_key_id", "minioadmin")
	v.SetDefault("s3.secret_access_key", "minioadmin")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "docpipe")
	v.SetDefault("s3.ensure_bucket", true)
}
