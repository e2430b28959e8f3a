package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	// initialSyncBackoff は同期エラー時の指数バックオフの初回遅延。
	initialSyncBackoff = 1 * time.Second
	// maxSyncBackoff は指数バックオフの最大遅延。
	maxSyncBackoff = 30 * time.Second
)

// SyncConfig は同期ループの設定。
type SyncConfig struct {
	// InitialSyncLimit は初回同期で取得するタイムラインイベント数の上限。
	// 起動コストを抑えるため小さな値にする。
	InitialSyncLimit int
	// Timeout はロングポーリングの待機時間。
	Timeout time.Duration
}

// SyncMetrics は同期ループのメトリクス記録インターフェース。
type SyncMetrics interface {
	RecordSyncRestart()
}

// Syncer はMatrixの/syncロングポーリングループを管理する。
// 1つのClientにつき同時に1つのSyncerのみが動作する。
type Syncer struct {
	client  *Client
	logger  *slog.Logger
	config  SyncConfig
	metrics SyncMetrics

	mu        sync.Mutex
	nextBatch string
	cancel    context.CancelFunc
	done      chan struct{}
	started   bool
}

// NewSyncer はSyncerの新しいインスタンスを生成する。metricsはnil可。
func NewSyncer(client *Client, logger *slog.Logger, config SyncConfig, metrics SyncMetrics) *Syncer {
	if config.InitialSyncLimit <= 0 {
		config.InitialSyncLimit = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Syncer{
		client:  client,
		logger:  logger,
		config:  config,
		metrics: metrics,
	}
}

// syncResponse は/syncレスポンスのうち必要な部分のみを表す。
type syncResponse struct {
	NextBatch string `json:"next_batch"`
}

// Start は初回同期を同期的に実行し、成功したらバックグラウンドループを開始する。
// 初回同期が失敗した場合はループを開始せずエラーを返す。
// 呼び出し元は失敗時にクライアントを破棄する責任を持つ（中途状態を残さない）。
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("syncer is already started")
	}
	s.mu.Unlock()

	// 初回同期: フィルタでタイムライン取得数を制限する
	next, err := s.syncOnce(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("初回同期に失敗しました: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.nextBatch = next
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true
	s.mu.Unlock()

	go s.loop(loopCtx, s.done)

	s.logger.Info("同期ループを開始しました",
		slog.Int("initial_sync_limit", s.config.InitialSyncLimit),
	)
	return nil
}

// Stop は同期ループを停止し、終了まで待機する。
// 未開始のSyncerに対して呼んでも安全（何もしない）。
func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("同期ループを停止しました")
}

// NextBatch は最後に受信した同期トークンを返す。
func (s *Syncer) NextBatch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextBatch
}

// loop はロングポーリングの継続ループ。
// エラー時は指数バックオフで再試行し、コンテキストのキャンセルで終了する。
func (s *Syncer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		since := s.nextBatch
		s.mu.Unlock()

		next, err := s.syncOnce(ctx, since, s.config.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			if s.metrics != nil {
				s.metrics.RecordSyncRestart()
			}
			delay := syncBackoff(consecutiveErrors)
			s.logger.Warn("同期リクエストに失敗しました",
				slog.String("error", err.Error()),
				slog.Int("consecutive_errors", consecutiveErrors),
				slog.Duration("retry_in", delay),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		consecutiveErrors = 0
		s.mu.Lock()
		s.nextBatch = next
		s.mu.Unlock()
	}
}

// syncOnce は/syncを1回呼び出し、next_batchトークンを返す。
// sinceが空の場合は初回同期としてタイムライン上限フィルタを付与する。
func (s *Syncer) syncOnce(ctx context.Context, since string, timeout time.Duration) (string, error) {
	q := url.Values{}
	if since == "" {
		filter := fmt.Sprintf(`{"room":{"timeline":{"limit":%d}}}`, s.config.InitialSyncLimit)
		q.Set("filter", filter)
	} else {
		q.Set("since", since)
		q.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	}

	var resp syncResponse
	if err := s.client.doJSON(ctx, "GET", syncPath+"?"+q.Encode(), nil, &resp); err != nil {
		return "", err
	}
	if resp.NextBatch == "" {
		return "", fmt.Errorf("同期レスポンスにnext_batchがありません")
	}
	return resp.NextBatch, nil
}

// syncBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回1秒、2倍ずつ増加、最大30秒。
func syncBackoff(consecutiveErrors int) time.Duration {
	delay := initialSyncBackoff
	for i := 1; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxSyncBackoff {
			return maxSyncBackoff
		}
	}
	return delay
}
