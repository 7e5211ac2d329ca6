package cache

import "testing"

func TestRedisKey(t *testing.T) {
	got := redisKey("call-123")
	want := "voicedispatch:call:call-123"
	if got != want {
		t.Errorf("redisKey() = %q, want %q", got, want)
	}
}
