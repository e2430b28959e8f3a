package platform

import (
	"context"
	"testing"
)

// TestStaticSource_PrefersDark は固定値がそのまま返ることをテストする。
func TestStaticSource_PrefersDark(t *testing.T) {
	if NewStaticSource(true).PrefersDark(context.Background()) != true {
		t.Error("PrefersDark = false, want true")
	}
	if NewStaticSource(false).PrefersDark(context.Background()) != false {
		t.Error("PrefersDark = true, want false")
	}
}

// TestStaticSource_Subscribe は値の変化時のみ通知されることをテストする。
func TestStaticSource_Subscribe(t *testing.T) {
	s := NewStaticSource(false)

	var notified []bool
	cancel := s.Subscribe(func(dark bool) {
		notified = append(notified, dark)
	})
	defer cancel()

	s.SetDark(true)
	s.SetDark(true) // 同値への更新は通知しない
	s.SetDark(false)

	if len(notified) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notified))
	}
	if notified[0] != true || notified[1] != false {
		t.Errorf("notified = %v, want [true false]", notified)
	}
}

// TestStaticSource_Unsubscribe はcancel後に通知されないことをテストする。
func TestStaticSource_Unsubscribe(t *testing.T) {
	s := NewStaticSource(false)

	count := 0
	cancel := s.Subscribe(func(bool) { count++ })
	cancel()

	s.SetDark(true)
	if count != 0 {
		t.Errorf("notifications after cancel = %d, want 0", count)
	}
}
