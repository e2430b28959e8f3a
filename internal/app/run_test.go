package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/hitoshi/kaiwa/internal/auth"
	"github.com/hitoshi/kaiwa/internal/homeserver"
	"github.com/hitoshi/kaiwa/internal/matrix"
	"github.com/hitoshi/kaiwa/internal/model"
)

// roundTripFunc は関数をhttp.RoundTripperとして使うためのアダプタ。
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// fixedClientFactory は固定のHTTPクライアントを使うauth.ClientFactory実装。
type fixedClientFactory struct {
	httpClient *http.Client
}

func (f *fixedClientFactory) NewClient(baseURL string) *matrix.Client {
	return matrix.NewClient(f.httpClient, slog.New(slog.NewTextHandler(io.Discard, nil)), baseURL)
}

// TestRun_Status_NotLoggedIn はstatusコマンドが未ログイン状態を表示することを検証する。
func TestRun_Status_NotLoggedIn(t *testing.T) {
	t.Setenv("KAIWA_DATA_DIR", t.TempDir())

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var out bytes.Buffer
	if err := runStatus(cfg, &out); err != nil {
		t.Fatalf("runStatus failed: %v", err)
	}

	if !strings.Contains(out.String(), "Not logged in") {
		t.Errorf("output = %q, want it to contain %q", out.String(), "Not logged in")
	}
	if !strings.Contains(out.String(), "Theme:") {
		t.Errorf("output = %q, want it to contain theme line", out.String())
	}
}

// TestRun_Theme_SetAndShow はthemeコマンドで設定が永続化されることを検証する。
func TestRun_Theme_SetAndShow(t *testing.T) {
	t.Setenv("KAIWA_DATA_DIR", t.TempDir())

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var out bytes.Buffer
	if err := runTheme(cfg, []string{"dark"}, &out); err != nil {
		t.Fatalf("runTheme failed: %v", err)
	}
	if !strings.Contains(out.String(), "Theme set to dark") {
		t.Errorf("output = %q, want confirmation", out.String())
	}

	// 別のContextから読み戻しても設定が残っている
	out.Reset()
	if err := runTheme(cfg, nil, &out); err != nil {
		t.Fatalf("runTheme failed: %v", err)
	}
	if !strings.Contains(out.String(), "Theme: dark") {
		t.Errorf("output = %q, want persisted dark theme", out.String())
	}
}

// TestRun_Theme_RejectsUnknownMode は未定義のテーマ名がエラーになることを検証する。
func TestRun_Theme_RejectsUnknownMode(t *testing.T) {
	t.Setenv("KAIWA_DATA_DIR", t.TempDir())

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var out bytes.Buffer
	if err := runTheme(cfg, []string{"neon"}, &out); err == nil {
		t.Fatal("expected error for unknown theme mode")
	}
}

// TestRun_Logout_NotLoggedIn は未ログイン状態のlogoutが成功扱いになることを検証する。
func TestRun_Logout_NotLoggedIn(t *testing.T) {
	t.Setenv("KAIWA_DATA_DIR", t.TempDir())

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var out bytes.Buffer
	if err := runLogout(cfg, &out); err != nil {
		t.Fatalf("runLogout failed: %v", err)
	}
	if !strings.Contains(out.String(), "Not logged in") {
		t.Errorf("output = %q, want %q", out.String(), "Not logged in")
	}
}

// TestRun_Login_InvalidHomeserver は不正なホームサーバー入力が検証で弾かれることを検証する。
func TestRun_Login_InvalidHomeserver(t *testing.T) {
	t.Setenv("KAIWA_DATA_DIR", t.TempDir())

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var out bytes.Buffer
	in := strings.NewReader("")
	err = runLogin(cfg, []string{"not a domain"}, in, &out)
	if err == nil {
		t.Fatal("expected error for invalid homeserver input")
	}
	if err.Error() != "Verification failed" {
		t.Errorf("error = %q, want %q", err.Error(), "Verification failed")
	}
}

// TestLoginFlow_NonconventionalDomainReachesDiscovery は慣用形式でないドメインでも
// 形式チェックで拒否されず、ディスカバリまで到達することを検証する。
func TestLoginFlow_NonconventionalDomainReachesDiscovery(t *testing.T) {
	t.Setenv("KAIWA_DATA_DIR", t.TempDir())

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	appCtx := NewContext(cfg, slog.Default())
	defer appCtx.Close()

	discoveryCalled := false
	discovery := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		discoveryCalled = true
		return jsonResponse(http.StatusBadGateway, `{}`), nil
	})}
	appCtx.Verifier = homeserver.NewVerifier(discovery, appCtx.Logger, cfg.HTTPMaxBodySize, appCtx.Collector)

	var out bytes.Buffer
	err = loginFlow(appCtx, []string{"matrix.internal"}, strings.NewReader(""), &out)
	if err == nil {
		t.Fatal("expected error from failed discovery")
	}
	if !discoveryCalled {
		t.Error("discovery request should be attempted for nonconventional domains")
	}
	if err.Error() != "Cannot connect to homeserver" {
		t.Errorf("error = %q, want %q", err.Error(), "Cannot connect to homeserver")
	}
}

// TestLoginFlow_BlockedURLNeverReachesNetwork はブロック対象のアドレスが
// ネットワーク接続前に遮断されることを検証する。
func TestLoginFlow_BlockedURLNeverReachesNetwork(t *testing.T) {
	t.Setenv("KAIWA_DATA_DIR", t.TempDir())

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	appCtx := NewContext(cfg, slog.Default())
	defer appCtx.Close()

	discoveryCalled := false
	discovery := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		discoveryCalled = true
		return jsonResponse(http.StatusOK, `{}`), nil
	})}
	appCtx.Verifier = homeserver.NewVerifier(discovery, appCtx.Logger, cfg.HTTPMaxBodySize, appCtx.Collector)

	var out bytes.Buffer
	err = loginFlow(appCtx, []string{"169.254.169.254"}, strings.NewReader(""), &out)
	if err == nil {
		t.Fatal("expected error for blocked address")
	}
	if err.Error() != "Verification failed" {
		t.Errorf("error = %q, want %q", err.Error(), "Verification failed")
	}
	if discoveryCalled {
		t.Error("blocked address must not produce a network request")
	}
}

// TestLoginFlow_ServerErrorSurfacesSanitized はサーバーの構造化エラーメッセージが
// サニタイズされた上でユーザーに表面化することを検証する。あわせて、
// ローカルパートのみの入力が完全修飾ユーザーIDとして送信されることも確認する。
func TestLoginFlow_ServerErrorSurfacesSanitized(t *testing.T) {
	t.Setenv("KAIWA_DATA_DIR", t.TempDir())
	t.Setenv("TMPDIR", t.TempDir())
	t.Setenv("KAIWA_USERNAME", "alice")
	t.Setenv("KAIWA_PASSWORD", "pw")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	appCtx := NewContext(cfg, slog.Default())
	defer appCtx.Close()

	discovery := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"m.homeserver":{"base_url":"https://client.internal"}}`), nil
	})}
	appCtx.Verifier = homeserver.NewVerifier(discovery, appCtx.Logger, cfg.HTTPMaxBodySize, appCtx.Collector)

	var sentUser string
	loginClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		var body struct {
			User string `json:"user"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode login request: %v", err)
		}
		sentUser = body.User
		return jsonResponse(http.StatusForbidden,
			`{"errcode":"M_FORBIDDEN","error":"<b>Bad</b> credentials"}`), nil
	})}
	appCtx.Exchanger = auth.NewExchanger(
		&fixedClientFactory{httpClient: loginClient},
		appCtx.Logger, appCtx.Collector, 600, 100, "Kaiwa Test",
	)

	var out bytes.Buffer
	err = loginFlow(appCtx, []string{"chat.example.org"}, strings.NewReader(""), &out)
	if err == nil {
		t.Fatal("expected error from rejected login")
	}

	if sentUser != "@alice:chat.example.org" {
		t.Errorf("sent user = %q, want %q", sentUser, "@alice:chat.example.org")
	}
	if err.Error() != "Bad credentials" {
		t.Errorf("error = %q, want sanitized server message %q", err.Error(), "Bad credentials")
	}
	if strings.Contains(err.Error(), "<") {
		t.Errorf("error %q must not contain markup", err.Error())
	}
}

// TestRun_Status_SanitizesStoredSession は保存済みセッション由来の文字列が
// 表示前にサニタイズされることを検証する。
func TestRun_Status_SanitizesStoredSession(t *testing.T) {
	t.Setenv("KAIWA_DATA_DIR", t.TempDir())

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	seed := NewContext(cfg, slog.Default())
	if err := seed.AuthStorage.Save(&model.Session{
		UserID:      "@<script>alert(1)</script>:evil.example",
		AccessToken: "t",
		DeviceID:    "D1",
		HomeServer:  "evil.example",
		BaseURL:     "https://evil.example",
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	seed.Close()

	var out bytes.Buffer
	if err := runStatus(cfg, &out); err != nil {
		t.Fatalf("runStatus failed: %v", err)
	}

	if strings.Contains(out.String(), "<script") {
		t.Errorf("output = %q, must not contain markup", out.String())
	}
	if !strings.Contains(out.String(), ":evil.example") {
		t.Errorf("output = %q, want the domain part to survive", out.String())
	}
}

// TestQualifyUserID はローカルパートの完全修飾化を検証する。
func TestQualifyUserID(t *testing.T) {
	tests := []struct {
		name     string
		username string
		domain   string
		want     string
	}{
		{name: "ローカルパートを修飾する", username: "alice", domain: "matrix.org", want: "@alice:matrix.org"},
		{name: "修飾済みはそのまま", username: "@alice:matrix.org", domain: "other.org", want: "@alice:matrix.org"},
		{name: "空のユーザー名はそのまま", username: "", domain: "matrix.org", want: ""},
		{name: "空のドメインはそのまま", username: "alice", domain: "", want: "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := qualifyUserID(tt.username, tt.domain); got != tt.want {
				t.Errorf("qualifyUserID(%q, %q) = %q, want %q", tt.username, tt.domain, got, tt.want)
			}
		})
	}
}

// TestReadCredentials_FromEnv は環境変数からクレデンシャルが読まれることを検証する。
func TestReadCredentials_FromEnv(t *testing.T) {
	t.Setenv("KAIWA_USERNAME", "@alice:matrix.org")
	t.Setenv("KAIWA_PASSWORD", "secret")

	creds, err := readCredentials(strings.NewReader(""), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("readCredentials failed: %v", err)
	}
	if creds.Username != "@alice:matrix.org" || creds.Password != "secret" {
		t.Errorf("creds = %+v", creds)
	}
}

// TestReadCredentials_FromStdin は標準入力からクレデンシャルが読まれることを検証する。
func TestReadCredentials_FromStdin(t *testing.T) {
	t.Setenv("KAIWA_USERNAME", "")
	t.Setenv("KAIWA_PASSWORD", "")

	in := strings.NewReader("@bob:matrix.org\nhunter2\n")
	var prompt bytes.Buffer
	creds, err := readCredentials(in, &prompt)
	if err != nil {
		t.Fatalf("readCredentials failed: %v", err)
	}
	if creds.Username != "@bob:matrix.org" {
		t.Errorf("Username = %q", creds.Username)
	}
	if creds.Password != "hunter2" {
		t.Errorf("Password = %q", creds.Password)
	}
	if !strings.Contains(prompt.String(), "Username:") {
		t.Error("prompt should ask for username")
	}
}
