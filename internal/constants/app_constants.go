package constants

const (
	// ServiceName 服务名，用于日志和链路追踪
	ServiceName = "talent-match"

	// DepartmentNotSpecified 职位未填写部门时渲染的占位
	DepartmentNotSpecified = "Not specified"

	// EventTypeRoleChanged 职位变更事件
	EventTypeRoleChanged = "role.changed"
	// EventTypeResumeParsed 简历解析完成事件
	EventTypeResumeParsed = "resume.parsed"

	// HeaderAPIKey 管理接口的鉴权头
	HeaderAPIKey = "X-API-Key"
	// HeaderRequestID 请求ID头
	HeaderRequestID = "X-Request-ID"
)
