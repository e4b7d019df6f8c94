package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	orchestratorx "github.com/tanpawarit/corecraft-support/agent/agents/orchestrator"
)

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	want := []string{"serve", "chat", "migrate", "seed", "tool"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %s missing: %v", name, err)
		}
	}
	if root.PersistentFlags().Lookup("env") == nil {
		t.Fatal("root must define --env")
	}
	seed, _, _ := root.Find([]string{"seed"})
	if seed.Flags().Lookup("file") == nil {
		t.Fatal("seed must define --file")
	}
}

func TestChatLoop(t *testing.T) {
	t.Parallel()

	in := strings.NewReader("hello\n\nwhere is ord_4002?\n/quit\nignored\n")
	var out bytes.Buffer
	var seen []string

	err := chatLoop(in, &out, func(text string) (orchestratorx.Output, error) {
		seen = append(seen, text)
		if strings.Contains(text, "ord_4002") {
			return orchestratorx.Output{
				Reply:     "It shipped yesterday.",
				GoalType:  "support.order_status",
				ToolCalls: []string{"get_order_details"},
			}, nil
		}
		return orchestratorx.Output{}, errors.New("model timeout")
	})
	if err != nil {
		t.Fatalf("chatLoop() error = %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected two turns, got %v", seen)
	}
	got := out.String()
	for _, want := range []string{"error: model timeout", "agent> It shipped yesterday.", "support.order_status: get_order_details"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestPrintResult(t *testing.T) {
	t.Parallel()

	v := map[string]any{"order_id": "ord_4002", "items": []string{"prod_gpu_4070"}}

	var js bytes.Buffer
	if err := printResult(&js, "json", v); err != nil {
		t.Fatalf("printResult(json) error = %v", err)
	}
	if !strings.Contains(js.String(), `"order_id": "ord_4002"`) {
		t.Fatalf("unexpected json: %s", js.String())
	}

	var ym bytes.Buffer
	if err := printResult(&ym, "yaml", v); err != nil {
		t.Fatalf("printResult(yaml) error = %v", err)
	}
	if !strings.Contains(ym.String(), "order_id: ord_4002") || !strings.Contains(ym.String(), "- prod_gpu_4070") {
		t.Fatalf("unexpected yaml: %s", ym.String())
	}

	if err := printResult(&ym, "xml", v); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestOpenStoreMemorySeedsFixture(t *testing.T) {
	t.Parallel()

	st, closeFn, err := openStore(context.Background(), AppConfig{StoreBackend: "memory"})
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	defer closeFn()

	if _, err := st.GetOrder(context.Background(), "ord_4002"); err != nil {
		t.Fatalf("seeded order missing: %v", err)
	}
	if _, _, err := openStore(context.Background(), AppConfig{StoreBackend: "sqlite"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
