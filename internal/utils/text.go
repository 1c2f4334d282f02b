package utils

import (
	"encoding/json"
	"strings"

	"k8s.io/klog/v2"
)

// ToJSON 序列化为 JSON 字符串，失败返回空串
func ToJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		klog.Errorf("JSON序列化失败: %v", err)
		return ""
	}
	return string(data)
}

// ExtractMarkdown 提取 ```markdown ... ``` 代码块内容
// 模型偶尔会把整篇文章包在代码块里，没有代码块时返回原文
func ExtractMarkdown(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}

	// 去掉起始围栏行（``` 或 ```markdown）
	nl := strings.Index(trimmed, "\n")
	if nl < 0 {
		return content
	}
	fence := strings.TrimSpace(trimmed[3:nl])
	if fence != "" && !strings.EqualFold(fence, "markdown") && !strings.EqualFold(fence, "md") {
		return content
	}
	body := trimmed[nl+1:]

	end := strings.LastIndex(body, "```")
	if end < 0 {
		return content
	}
	return strings.TrimRight(body[:end], "\n")
}
