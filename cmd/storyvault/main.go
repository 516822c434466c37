// Command storyvault 运行 HTTP API、富化消费者与运维子命令.
package main

import (
	"os"

	"github.com/yeisme/storyvault/pkg/cmd"
)

//	@title			StoryVault API
//	@version		1.0
//	@description	StoryVault 接收患者故事表单提交，异步生成标签、主题与结构化元数据，并提供检索与邮编聚合。

//	@license.name	MIT
//	@license.url	https://opensource.org/license/mit/

//	@contact.name	yeisme
//	@contact.email	yefun2004@gmail.com.

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization

func main() {
	// cobra 已把错误写到 stderr
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
