package configs

import "github.com/spf13/viper"

// EventsConfig 流水线使用的消息主题与消费组.
type EventsConfig struct {
	ObjectCreatedTopic     string `mapstructure:"object_created_topic"     rule:"required"`
	AnalysisRequestedTopic string `mapstructure:"analysis_requested_topic" rule:"required"`
	StatusChangedTopic     string `mapstructure:"status_changed_topic"`
	ConsumerGroup          string `mapstructure:"consumer_group"           rule:"required"`
	// PublishStatusChanges 状态迁移后是否发布 status_changed 事件
	PublishStatusChanges bool `mapstructure:"publish_status_changes"`
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("events.object_created_topic", "dp.object.created")
	v.SetDefault("events.analysis_requested_topic", "dp.analysis.requested")
	v.SetDefault("events.status_changed_topic", "dp.document.status_changed")
	v.SetDefault("events.consumer_group", "docpipe")
	v.SetDefault("events.publish_status_changes", true)
}
