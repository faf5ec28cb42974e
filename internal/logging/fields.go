package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FetchFields 描述一次上游拉取的 endpoint/format/请求 ID。
func FetchFields(endpoint, format, requestID string) logrus.Fields {
	return logrus.Fields{
		"action":     "fetch",
		"endpoint":   endpoint,
		"format":     format,
		"request_id": requestID,
	}
}

// ToolFields 供工具调用日志复用。
func ToolFields(tool string, id any) logrus.Fields {
	return logrus.Fields{
		"action": "tool_call",
		"tool":   tool,
		"rpc_id": id,
	}
}
