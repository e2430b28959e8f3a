package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/kaiwa/internal/auth"
	"github.com/hitoshi/kaiwa/internal/config"
	"github.com/hitoshi/kaiwa/internal/diag"
	"github.com/hitoshi/kaiwa/internal/homeserver"
	"github.com/hitoshi/kaiwa/internal/logger"
	"github.com/hitoshi/kaiwa/internal/matrix"
	"github.com/hitoshi/kaiwa/internal/metrics"
	"github.com/hitoshi/kaiwa/internal/model"
	"github.com/hitoshi/kaiwa/internal/platform"
	"github.com/hitoshi/kaiwa/internal/security"
	"github.com/hitoshi/kaiwa/internal/state"
	"github.com/hitoshi/kaiwa/internal/store"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("data_dir", cfg.DataDir),
	)

	rest := args
	if len(rest) > 0 {
		rest = rest[1:]
	}

	switch cmd {
	case CommandLogin:
		return runLogin(cfg, rest, os.Stdin, os.Stdout)
	case CommandLogout:
		return runLogout(cfg, os.Stdout)
	case CommandStatus:
		return runStatus(cfg, os.Stdout)
	case CommandTheme:
		return runTheme(cfg, rest, os.Stdout)
	default:
		return runDaemon(cfg)
	}
}

// clientFactory は接続ガード付きHTTPクライアントでMatrixクライアントを組み立てる。
type clientFactory struct {
	guard     security.ConnectionGuardService
	logger    *slog.Logger
	cfg       *config.Config
	collector *metrics.Collector
}

// NewClient は未認証クライアントを生成する。
func (f *clientFactory) NewClient(baseURL string) *matrix.Client {
	return matrix.NewClient(f.guard.NewSafeClient(f.cfg.HTTPTimeout), f.logger, baseURL)
}

// NewAuthenticatedClient は認証済みクライアントを生成する。
// ロングポーリングの/syncを妨げないよう、タイムアウトは同期待機時間より長く取る。
func (f *clientFactory) NewAuthenticatedClient(baseURL, accessToken, userID string) *matrix.Client {
	httpClient := f.guard.NewSafeClient(f.cfg.SyncTimeout + f.cfg.HTTPTimeout)
	return matrix.NewAuthenticatedClient(httpClient, f.logger, baseURL, accessToken, userID)
}

// NewSyncer はクライアントに対する同期ループを生成する。
func (f *clientFactory) NewSyncer(client *matrix.Client) *matrix.Syncer {
	return matrix.NewSyncer(client, f.logger, matrix.SyncConfig{
		InitialSyncLimit: f.cfg.InitialSyncLimit,
		Timeout:          f.cfg.SyncTimeout,
	}, f.collector)
}

// Context はアプリケーション全体の依存関係を束ねる。
// パッケージレベルの可変状態を持たないためのワイヤリング起点。
type Context struct {
	Config       *config.Config
	Logger       *slog.Logger
	Registry     *prometheus.Registry
	Collector    *metrics.Collector
	Stores       *store.Manager
	AuthStorage  *store.AuthStorage
	ThemeStorage *store.ThemeStorage
	PendingCache *store.PendingCache
	Clients      *clientFactory
	Guard        security.ConnectionGuardService
	Sanitizer    *security.Sanitizer
	Verifier     *homeserver.Verifier
	Exchanger    *auth.Exchanger
	Activator    *auth.Activator
	AuthState    *state.AuthState
	ThemeState   *state.ThemeState
}

// NewContext は全依存関係をワイヤリングしたContextを生成する。
func NewContext(cfg *config.Config, log *slog.Logger) *Context {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	manager := store.NewManager(cfg.DataDir, log)
	guard := security.NewConnectionGuard()
	sanitizer := security.NewSanitizer()

	factory := &clientFactory{
		guard:     guard,
		logger:    log,
		cfg:       cfg,
		collector: collector,
	}

	scheme := platform.NewCommandSource(log, cfg.SchemePollInterval)
	themeStorage := store.NewThemeStorage(manager, log)

	return &Context{
		Config:       cfg,
		Logger:       log,
		Registry:     registry,
		Collector:    collector,
		Stores:       manager,
		AuthStorage:  store.NewAuthStorage(manager, log),
		ThemeStorage: themeStorage,
		PendingCache: store.NewPendingCache(os.TempDir(), log),
		Clients:      factory,
		Guard:        guard,
		Sanitizer:    sanitizer,
		Verifier: homeserver.NewVerifier(
			guard.NewSafeClient(cfg.HTTPTimeout), log, cfg.HTTPMaxBodySize, collector,
		),
		Exchanger: auth.NewExchanger(
			factory, log, collector,
			float64(cfg.LoginRatePerMin), cfg.LoginBurst, cfg.DeviceName,
		),
		Activator:  auth.NewActivator(factory, log),
		AuthState:  state.NewAuthState(log),
		ThemeState: state.NewThemeState(themeStorage, scheme, log, nil),
	}
}

// Close は保持しているリソースを解放する。
func (c *Context) Close() {
	c.ThemeState.Close()
	c.Stores.CloseAll()
}

// runLogin は対話的なログインフローを実行する。
func runLogin(cfg *config.Config, args []string, in io.Reader, out io.Writer) error {
	appCtx := NewContext(cfg, slog.Default())
	defer appCtx.Close()
	return loginFlow(appCtx, args, in, out)
}

// loginFlow はログインフローの本体。
// 検証 → クレデンシャル交換 → 保存 → 中間状態破棄 → 有効化確認 の順に進む。
func loginFlow(appCtx *Context, args []string, in io.Reader, out io.Writer) error {
	ctx := context.Background()

	input := appCtx.Config.DefaultHomeserver
	if len(args) > 0 {
		input = args[0]
	}

	normalized := homeserver.Normalize(input)

	// 接続前の静的な安全性チェック。危険なURLはここで遮断する
	if err := appCtx.Guard.ValidateURL(normalized); err != nil {
		slog.Warn("接続先URLが拒否されました",
			slog.String("input", appCtx.Sanitizer.SanitizeText(input)),
			slog.String("error", err.Error()),
		)
		return errors.New("Verification failed")
	}

	// ドメインの形式チェックは観測のみ。可否の判定はディスカバリに委ねる
	domain := strings.TrimRight(homeserver.ExtractDomain(normalized), "/")
	if !security.IsValidHomeserverDomain(domain) {
		slog.Warn("ホームサーバードメインが慣用形式ではありません",
			slog.String("input", appCtx.Sanitizer.SanitizeText(input)),
		)
	}

	result := appCtx.Verifier.Verify(ctx, input)
	if !result.IsValid {
		return errors.New(appCtx.Sanitizer.SanitizeText(result.Error))
	}

	pending := &model.PendingAuth{
		Homeserver: result.NormalizedURL,
		BaseURL:    result.BaseURL,
	}
	appCtx.AuthState.SetPendingAuth(pending)
	appCtx.PendingCache.Save(pending)

	creds, err := readCredentials(in, out)
	if err != nil {
		return err
	}
	creds.Username = qualifyUserID(creds.Username, domain)

	loginResult := appCtx.Exchanger.Exchange(ctx, pending.BaseURL, creds)
	if !loginResult.Success {
		return errors.New(appCtx.Sanitizer.SanitizeText(loginResult.Error))
	}

	session := loginResult.Session(pending.BaseURL)
	appCtx.AuthState.SetAuthData(session)

	// 中間状態の破棄より先に保存する。ここで失敗したら中間状態は残す
	if err := appCtx.AuthStorage.Save(session); err != nil {
		appCtx.Collector.RecordStoreWriteFailure("auth.db")
		return err
	}

	appCtx.AuthState.SetPendingAuth(nil)
	appCtx.PendingCache.Clear()

	// トークンが実際に使えることを初回同期で確認する
	handle, err := appCtx.Activator.Activate(ctx, session)
	if err != nil {
		return err
	}
	handle.Syncer.Stop()

	fmt.Fprintf(out, "Logged in as %s\n", appCtx.Sanitizer.SanitizeText(session.UserID))
	return nil
}

// qualifyUserID はローカルパートのみの入力を完全修飾ユーザーID（@local:domain）に
// 組み立てる。すでに@で始まる入力はそのまま使用する。
func qualifyUserID(username, domain string) string {
	if username == "" || domain == "" || strings.HasPrefix(username, "@") {
		return username
	}
	return "@" + username + ":" + domain
}

// runLogout は保存済みセッションを破棄する。
// サーバー側のトークン失効はベストエフォート、ローカルの削除は必須。
func runLogout(cfg *config.Config, out io.Writer) error {
	appCtx := NewContext(cfg, slog.Default())
	defer appCtx.Close()

	session := appCtx.AuthStorage.Load()
	if session == nil {
		fmt.Fprintln(out, "Not logged in")
		return nil
	}

	client := appCtx.Clients.NewAuthenticatedClient(session.BaseURL, session.AccessToken, session.UserID)
	appCtx.Activator.Deactivate(context.Background(), &state.ClientHandle{Client: client})

	if err := appCtx.AuthStorage.Clear(); err != nil {
		appCtx.Collector.RecordStoreWriteFailure("auth.db")
		return err
	}
	appCtx.AuthState.ClearAuth()

	fmt.Fprintln(out, "Logged out")
	return nil
}

// runStatus は保存済みの認証状態とテーマ設定を表示する。
func runStatus(cfg *config.Config, out io.Writer) error {
	appCtx := NewContext(cfg, slog.Default())
	defer appCtx.Close()

	session := appCtx.AuthStorage.Load()
	if session == nil {
		fmt.Fprintln(out, "Not logged in")
	} else {
		// 保存済みセッションの値もサーバー由来。表示前にサニタイズする
		fmt.Fprintf(out, "Logged in as %s\n", appCtx.Sanitizer.SanitizeText(session.UserID))
		fmt.Fprintf(out, "Homeserver: %s\n", appCtx.Sanitizer.SanitizeText(session.HomeServer))
		fmt.Fprintf(out, "Device: %s\n", appCtx.Sanitizer.SanitizeText(session.DeviceID))
	}

	appCtx.ThemeState.Initialize(context.Background())
	fmt.Fprintf(out, "Theme: %s (resolved: %s)\n",
		appCtx.ThemeState.Mode(), appCtx.ThemeState.Resolved())
	return nil
}

// runTheme はテーマ設定を表示または変更する。
func runTheme(cfg *config.Config, args []string, out io.Writer) error {
	appCtx := NewContext(cfg, slog.Default())
	defer appCtx.Close()

	appCtx.ThemeState.Initialize(context.Background())

	if len(args) == 0 {
		fmt.Fprintf(out, "Theme: %s (resolved: %s)\n",
			appCtx.ThemeState.Mode(), appCtx.ThemeState.Resolved())
		return nil
	}

	mode := model.ThemeMode(args[0])
	if !mode.IsValid() {
		return fmt.Errorf("unknown theme %q (valid: system, light, dark, saki)", args[0])
	}

	if err := appCtx.ThemeState.SetTheme(context.Background(), mode); err != nil {
		appCtx.Collector.RecordStoreWriteFailure("settings.db")
		return err
	}

	fmt.Fprintf(out, "Theme set to %s (resolved: %s)\n",
		mode, appCtx.ThemeState.Resolved())
	return nil
}

// runDaemon は常駐モードで起動する。
// 保存済みセッションがあればクライアントを有効化し、診断サーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runDaemon(cfg *config.Config) error {
	appCtx := NewContext(cfg, slog.Default())
	defer appCtx.Close()

	ctx := context.Background()

	appCtx.ThemeState.Initialize(ctx)
	appCtx.AuthState.Initialize(appCtx.AuthStorage, appCtx.PendingCache)

	// 保存済みセッションがあれば同期を再開する。失敗しても
	// クレデンシャルは保持したまま起動を続ける（次回起動で再試行）
	if session := appCtx.AuthState.Session(); session != nil {
		handle, err := appCtx.Activator.Activate(ctx, session)
		if err != nil {
			slog.Warn("同期の再開に失敗しました", slog.String("error", err.Error()))
		} else {
			appCtx.AuthState.SetClient(handle)
		}
	}

	diagServer := diag.NewServer(
		cfg.DiagListenAddr, appCtx.Logger, appCtx.Registry,
		appCtx.AuthState, appCtx.ThemeState,
	)
	if err := diagServer.Start(); err != nil {
		return fmt.Errorf("failed to start diagnostics server: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	slog.Info("shutting down...")

	// ログアウトはしない。同期ループだけ止めてトークンは維持する
	if handle := appCtx.AuthState.Client(); handle != nil && handle.Syncer != nil {
		handle.Syncer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := diagServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("diagnostics server shutdown failed: %w", err)
	}

	slog.Info("stopped gracefully")
	return nil
}

// readCredentials は環境変数または標準入力からクレデンシャルを読み取る。
func readCredentials(in io.Reader, out io.Writer) (auth.Credentials, error) {
	creds := auth.Credentials{
		Username: os.Getenv("KAIWA_USERNAME"),
		Password: os.Getenv("KAIWA_PASSWORD"),
	}
	if creds.Username != "" && creds.Password != "" {
		return creds, nil
	}

	reader := bufio.NewReader(in)

	if creds.Username == "" {
		fmt.Fprint(out, "Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return creds, fmt.Errorf("failed to read username: %w", err)
		}
		creds.Username = strings.TrimSpace(line)
	}

	if creds.Password == "" {
		fmt.Fprint(out, "Password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return creds, fmt.Errorf("failed to read password: %w", err)
		}
		creds.Password = strings.TrimRight(line, "\r\n")
	}

	return creds, nil
}
