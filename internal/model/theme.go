package model

// ThemeMode はユーザーが選択可能なテーマ設定値。
type ThemeMode string

const (
	// ThemeModeSystem はOSのカラースキーム設定に追従することを示す。
	ThemeModeSystem ThemeMode = "system"
	// ThemeModeLight はライトテーマ。
	ThemeModeLight ThemeMode = "light"
	// ThemeModeDark はダークテーマ。
	ThemeModeDark ThemeMode = "dark"
	// ThemeModeSaki はブランドテーマ。
	ThemeModeSaki ThemeMode = "saki"
)

// IsValid はThemeModeが定義済みの値かを返す。
// ストレージから読み込んだ値の検証に使用する。
func (m ThemeMode) IsValid() bool {
	switch m {
	case ThemeModeSystem, ThemeModeLight, ThemeModeDark, ThemeModeSaki:
		return true
	}
	return false
}

// ResolvedTheme は実際にUIへ適用される具体的なテーマ値。
// systemは含まれない。modeがsystemの場合はOSのカラースキームから導出される。
type ResolvedTheme string

const (
	// ResolvedLight はライトテーマの適用を示す。
	ResolvedLight ResolvedTheme = "light"
	// ResolvedDark はダークテーマの適用を示す。
	ResolvedDark ResolvedTheme = "dark"
	// ResolvedSaki はブランドテーマの適用を示す。
	ResolvedSaki ResolvedTheme = "saki"
)
