// dirscraper 从 JS 渲染的商户目录抓取公司联系方式
package main

import (
	_ "embed"
)

// 默认配置,用户配置文件在此基础上叠加
//
//go:embed appconfig/appconfig.json
var appConfig []byte

func main() {
	Execute()
}
