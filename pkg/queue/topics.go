package queue

// 主题命名：dp.<域>.<动作>，保持稳定并向后兼容.
// 实际使用的主题来自 events 配置段，这里是默认值.
const (
	// TopicObjectCreated 对象存储写入完成（MinIO 桶通知转发或上游服务发布）.
	TopicObjectCreated = "dp.object.created"
	// TopicAnalysisRequested 请求对某个源文档做内容分析，发后即忘.
	TopicAnalysisRequested = "dp.analysis.requested"
	// TopicStatusChanged 文档状态发生迁移，供下游订阅.
	TopicStatusChanged = "dp.document.status_changed"
)

// AllTopics 全部默认主题，CLI 的 mq ls 使用.
var AllTopics = []string{
	TopicObjectCreated,
	TopicAnalysisRequested,
	TopicStatusChanged,
}
