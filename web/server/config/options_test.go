package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewOptions(t *testing.T) {
	o := NewOptions(nil)
	assert.Equal(t, "staticd", o.Name)
	assert.Equal(t, "127.0.0.1:7878", o.Addr())
	assert.Equal(t, 4, o.Workers)
	assert.Equal(t, 20*time.Second, o.ReadTimeout)
	assert.Equal(t, 10485760, o.MaxRequestBodySize)
	assert.Equal(t, 10*time.Minute, o.Cache.Expiration)
	assert.False(t, o.Cache.Enable)
	assert.Nil(t, o.ListenConfig)
	assert.False(t, o.Limiter.Enable)
	assert.Equal(t, 1000, o.Limiter.Qos)

	o = NewOptions([]Option{WithHost("::1"), WithPort(8080), WithWorkers(16), WithCompress(true, 10)})
	assert.Equal(t, "[::1]:8080", o.Addr())
	assert.Equal(t, 16, o.Workers)
	assert.True(t, o.Compress)
	assert.Equal(t, 10, o.MinCompressSize)

	o = NewOptions([]Option{WithLimiter(5, 0)})
	assert.True(t, o.Limiter.Enable)
	assert.Equal(t, 5, o.Limiter.Qos)
}

func TestNewOptionsKeepsExplicitZero(t *testing.T) {
	o := NewOptions([]Option{WithPort(0), WithReadTimeout(0), WithStatsCron(""), WithLimits(0, 0)})
	assert.Equal(t, uint(0), o.Port)
	assert.Equal(t, time.Duration(0), o.ReadTimeout)
	assert.Equal(t, "", o.StatsCron)
	assert.Equal(t, 0, o.MaxHeaderBytes)
	assert.Equal(t, 0, o.MaxRequestBodySize)

	// the stats job is opt-in
	assert.Equal(t, "", NewOptions(nil).StatsCron)
}
