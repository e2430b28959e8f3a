package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/kaiwa/internal/model"
	"github.com/hitoshi/kaiwa/internal/platform"
)

// ThemeStorer はテーマ設定の永続化。
type ThemeStorer interface {
	Save(mode model.ThemeMode) error
	Load() (model.ThemeMode, bool)
}

// ThemeState はテーマ設定の状態機械。
// モード変更は永続化が成功してからインメモリ状態に反映される。
// systemモードの間だけOSのカラースキーム変更を購読する。
type ThemeState struct {
	storage ThemeStorer
	source  platform.ColorSchemeSource
	logger  *slog.Logger

	mu          sync.Mutex
	initialized bool
	mode        model.ThemeMode
	resolved    model.ResolvedTheme
	unsubscribe func()

	// onApply は解決済みテーマの変化をUI層へ伝えるフック。nil可。
	onApply func(model.ResolvedTheme)
}

// NewThemeState はThemeStateを生成する。onApplyはnilでもよい。
func NewThemeState(storage ThemeStorer, source platform.ColorSchemeSource, logger *slog.Logger, onApply func(model.ResolvedTheme)) *ThemeState {
	return &ThemeState{
		storage: storage,
		source:  source,
		logger:  logger,
		mode:    model.ThemeModeSystem,
		onApply: onApply,
	}
}

// Initialize は永続化済みモードから状態を復元する。
// 保存がない・読めない場合はsystemにフォールバックする。失敗しない。
func (t *ThemeState) Initialize(ctx context.Context) {
	mode, ok := t.storage.Load()
	if !ok {
		mode = model.ThemeModeSystem
	}

	t.mu.Lock()
	t.mode = mode
	t.resolved = t.resolveLocked(ctx, mode)
	t.initialized = true
	t.mu.Unlock()

	t.reconcileSubscription(mode)

	t.logger.Info("テーマ状態を初期化しました",
		slog.String("mode", string(mode)),
	)
}

// SetTheme はモードを変更する。先に永続化し、失敗した場合は
// インメモリ状態を変更せずエラーを返す。
func (t *ThemeState) SetTheme(ctx context.Context, mode model.ThemeMode) error {
	if err := t.storage.Save(mode); err != nil {
		return err
	}

	t.mu.Lock()
	t.mode = mode
	t.resolved = t.resolveLocked(ctx, mode)
	resolved := t.resolved
	t.mu.Unlock()

	t.reconcileSubscription(mode)
	t.apply(resolved)

	t.logger.Info("テーマを変更しました",
		slog.String("mode", string(mode)),
		slog.String("resolved", string(resolved)),
	)
	return nil
}

// SetResolvedTheme は解決済みテーマだけを更新する。永続化しない。
// OSカラースキーム変更の通知経路から呼ばれる。
func (t *ThemeState) SetResolvedTheme(resolved model.ResolvedTheme) {
	t.mu.Lock()
	t.resolved = resolved
	t.mu.Unlock()

	t.apply(resolved)
}

// Mode は現在のモードを返す。
func (t *ThemeState) Mode() model.ThemeMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// Resolved は現在の解決済みテーマを返す。
func (t *ThemeState) Resolved() model.ResolvedTheme {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolved
}

// IsInitialized は初期化済みかを返す。
func (t *ThemeState) IsInitialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

// Close はOSカラースキームの購読を解除する。
func (t *ThemeState) Close() {
	t.mu.Lock()
	unsub := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// resolveLocked はモードから解決済みテーマを導出する。t.muを保持して呼ぶこと。
func (t *ThemeState) resolveLocked(ctx context.Context, mode model.ThemeMode) model.ResolvedTheme {
	switch mode {
	case model.ThemeModeLight:
		return model.ResolvedLight
	case model.ThemeModeDark:
		return model.ResolvedDark
	case model.ThemeModeSaki:
		return model.ResolvedSaki
	}
	if t.source.PrefersDark(ctx) {
		return model.ResolvedDark
	}
	return model.ResolvedLight
}

// reconcileSubscription はモードに応じて購読を開始または解除する。
// systemに入ったら購読し、systemを離れたら解除する。
func (t *ThemeState) reconcileSubscription(mode model.ThemeMode) {
	t.mu.Lock()
	current := t.unsubscribe
	t.mu.Unlock()

	if mode == model.ThemeModeSystem {
		if current != nil {
			return
		}
		unsub := t.source.Subscribe(func(dark bool) {
			// 購読解除とコールバックが競合した場合に備え、モードを再確認する
			if t.Mode() != model.ThemeModeSystem {
				return
			}
			if dark {
				t.SetResolvedTheme(model.ResolvedDark)
			} else {
				t.SetResolvedTheme(model.ResolvedLight)
			}
		})
		t.mu.Lock()
		t.unsubscribe = unsub
		t.mu.Unlock()
		return
	}

	if current != nil {
		t.mu.Lock()
		t.unsubscribe = nil
		t.mu.Unlock()
		current()
	}
}

// apply は解決済みテーマの変化をフックへ通知する。
func (t *ThemeState) apply(resolved model.ResolvedTheme) {
	if t.onApply != nil {
		t.onApply(resolved)
	}
}
