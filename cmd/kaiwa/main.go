package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/kaiwa/internal/app"
	"github.com/hitoshi/kaiwa/internal/security"
)

func main() {
	if err := app.Run(os.Stderr, os.Args[1:]); err != nil {
		// エラーメッセージはサーバー由来の文字列を含みうるため、表示前にサニタイズする
		fmt.Fprintln(os.Stderr, security.NewSanitizer().SanitizeText(err.Error()))
		os.Exit(1)
	}
}
