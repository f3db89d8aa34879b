package util

import (
	"fmt"
	"strings"
)

// RenderTemplate 替换模板中的 {{name}} 占位符，未匹配的占位符原样保留
func RenderTemplate(template string, vars map[string]interface{}) string {
	result := template
	for name, value := range vars {
		result = strings.ReplaceAll(result, "{{"+name+"}}", fmt.Sprintf("%v", value))
	}
	return result
}
