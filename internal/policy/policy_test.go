package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromePolicy(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "managed", "holdover.json")
	r := NewChromePolicy(path, "")

	t.Run("missing file reads as default", func(t *testing.T) {
		v, err := r.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, DefaultMode, v)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, r.Set(ctx, "disable_non_proxied_udp"))
		v, err := r.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "disable_non_proxied_udp", v)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"WebRtcIPHandling": "disable_non_proxied_udp"`)
	})

	t.Run("default removes key and keeps others", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`{"Other": 1, "WebRtcIPHandling": "x"}`), 0644))
		require.NoError(t, r.Set(ctx, DefaultMode))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "WebRtcIPHandling")
		assert.Contains(t, string(data), `"Other": 1`)

		v, err := r.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, DefaultMode, v)
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("corrupt document", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
		_, err := r.Get(ctx)
		assert.Error(t, err)
		assert.Error(t, r.Set(ctx, "custom"))
	})

	t.Run("non-string value", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`{"WebRtcIPHandling": 3}`), 0644))
		_, err := r.Get(ctx)
		assert.Error(t, err)
	})
}

func TestSysctl(t *testing.T) {
	ctx := context.Background()

	t.Run("mocked", func(t *testing.T) {
		io := new(MockSysctlIO)
		io.On("ReadSysctl", "net.ipv6.conf.all.use_tempaddr").Return("2", nil)
		io.On("WriteSysctl", "net.ipv6.conf.all.use_tempaddr", "0").Return(nil)

		r := NewSysctl("net.ipv6.conf.all.use_tempaddr", io)
		v, err := r.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2", v)
		require.NoError(t, r.Set(ctx, "0"))
		io.AssertExpectations(t)
	})

	t.Run("errors are wrapped", func(t *testing.T) {
		boom := errors.New("permission denied")
		io := new(MockSysctlIO)
		io.On("ReadSysctl", "a.b").Return("", boom)
		io.On("WriteSysctl", "a.b", "1").Return(boom)

		r := NewSysctl("a.b", io)
		_, err := r.Get(ctx)
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, r.Set(ctx, "1"), boom)
	})

	t.Run("absolute path on disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "knob")
		require.NoError(t, os.WriteFile(path, []byte("1\n"), 0644))

		r := NewSysctl(path, nil)
		v, err := r.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1", v)

		require.NoError(t, r.Set(ctx, "0"))
		v, _ = r.Get(ctx)
		assert.Equal(t, "0", v)
	})

	assert.Equal(t, "/proc/sys/net/ipv4/ip_forward", sysctlPath("net.ipv4.ip_forward"))
}

func TestDryRun(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory("custom")
	d := NewDryRun(inner, nil)

	v, err := d.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "custom", v)

	require.NoError(t, d.Set(ctx, DefaultMode))
	v, _ = d.Get(ctx)
	assert.Equal(t, DefaultMode, v)

	underlying, _ := inner.Get(ctx)
	assert.Equal(t, "custom", underlying, "dry run must not touch the wrapped resource")
	assert.Equal(t, []string{"set memory=default"}, d.Writes)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
		prefix  string
	}{
		{"chrome", Spec{Kind: KindChromePolicy, Path: filepath.Join(t.TempDir(), "p.json")}, false, "chrome_policy"},
		{"sysctl", Spec{Kind: KindSysctl, Path: "net.ipv4.ip_forward"}, false, "sysctl"},
		{"sysctl without path", Spec{Kind: KindSysctl}, true, ""},
		{"memory", Spec{Kind: KindMemory}, false, "memory"},
		{"dry run", Spec{Kind: KindMemory, DryRun: true}, false, "dry-run"},
		{"unknown", Spec{Kind: "registry"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.spec, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, r.Describe(), tt.prefix)
		})
	}

	_, err := New(Spec{Kind: "registry"}, nil)
	assert.ErrorIs(t, err, ErrUnknownKind)

	r, _ := New(Spec{Kind: KindMemory}, nil)
	v, _ := r.Get(context.Background())
	assert.Equal(t, DefaultMode, v)
}
