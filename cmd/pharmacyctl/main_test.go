package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/sage-erp/pharmacy/internal/testing/guard"
)

func TestRunUsage(t *testing.T) {
	cases := [][]string{
		nil,
		{"bogus"},
		{"jobs"},
		{"jobs", "trigger"},
		{"jobs", "replay"},
	}
	for _, args := range cases {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), args, &stdout, &stderr)
		require.Equal(t, 2, code, args)
		require.Contains(t, stderr.String(), "usage: pharmacyctl")
	}
}

func TestRunRejectsUnknownJob(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"jobs", "trigger", "reindex"}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "unsupported job reindex")
}
