package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandRun は常駐モードで起動することを示す。
	CommandRun Command = "run"
	// CommandLogin はログインフローを実行することを示す。
	CommandLogin Command = "login"
	// CommandLogout はログアウトを実行することを示す。
	CommandLogout Command = "logout"
	// CommandStatus は現在の状態を表示することを示す。
	CommandStatus Command = "status"
	// CommandTheme はテーマ設定の表示と変更を示す。
	CommandTheme Command = "theme"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandRunを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandRun
	}

	switch args[0] {
	case "run":
		return CommandRun
	case "login":
		return CommandLogin
	case "logout":
		return CommandLogout
	case "status":
		return CommandStatus
	case "theme":
		return CommandTheme
	default:
		return CommandRun
	}
}
