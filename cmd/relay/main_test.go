package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageMapper(t *testing.T) {
	t.Run("should render a hashtag list", func(t *testing.T) {
		req := require.New(t)
		row := MessageMapper("channel:general:hashtags", []byte(`["#go","#badger"]`))
		req.Equal("HASHTAGS", row.Type)
		req.Equal("#go #badger", row.Detail)
	})

	t.Run("should report an undecodable hashtag list", func(t *testing.T) {
		req := require.New(t)
		row := MessageMapper("channel:general:hashtags", []byte("{broken"))
		req.Equal("Error: unmarshal failed", row.Detail)
		req.Equal("RAW", row.Type)
	})

	t.Run("should report an undecodable message", func(t *testing.T) {
		row := MessageMapper("message:01HZX", []byte("{broken"))
		require.Equal(t, "Error: unmarshal failed", row.Detail)
	})

	t.Run("should tag index keys", func(t *testing.T) {
		row := MessageMapper("channel:general:msg:0000000000000000001:01HZX", nil)
		require.Equal(t, "INDEX", row.Type)
	})
}
