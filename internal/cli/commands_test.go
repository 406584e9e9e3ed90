package cli

import (
	"bytes"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", ""))
	err := cmd.Execute()
	return out.String(), err
}

func TestTableRendersFilteredPage(t *testing.T) {
	out, err := run(t, "table", "positions", "--filter", "risk=high", "--page-size", "5")
	if err != nil {
		t.Fatalf("table: %v\n%s", err, out)
	}
	if !strings.Contains(out, "page 1/1") {
		t.Errorf("missing footer:\n%s", out)
	}
	if strings.Contains(out, "POS-1001") || !strings.Contains(out, "POS-1005") {
		t.Errorf("risk=high page:\n%s", out)
	}
}

func TestTableRejectsUnknownTable(t *testing.T) {
	if _, err := run(t, "table", "orders"); err == nil {
		t.Fatal("expected error for unknown table")
	}
}

func TestTableRejectsUnknownColumn(t *testing.T) {
	if _, err := run(t, "table", "pending", "--hide", "nope"); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestConfigShowRedacts(t *testing.T) {
	t.Setenv("TRADEDESK_AUTH_API_KEY", "super-secret")
	out, err := run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "super-secret") || !strings.Contains(out, `api_key = "***"`) {
		t.Errorf("api key not redacted:\n%s", out)
	}
	if !strings.Contains(out, `mode = "standalone"`) {
		t.Errorf("missing mode:\n%s", out)
	}
}

func TestConfigValidateReportsProblems(t *testing.T) {
	t.Setenv("TRADEDESK_MODE", "backtest")
	if _, err := run(t, "config", "validate"); err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("err = %v", err)
	}
}
