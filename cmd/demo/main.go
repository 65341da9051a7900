package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aridsondez/monjobs/internal/ack"
	"github.com/aridsondez/monjobs/internal/api"
	"github.com/aridsondez/monjobs/internal/queue"
	"github.com/aridsondez/monjobs/internal/queue/store/memory"
	"github.com/aridsondez/monjobs/pkg/client"
	"github.com/aridsondez/monjobs/pkg/worker"
)

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorBold    = "\033[1m"
)

const demoJobs = 5

func main() {
	if err := run(); err != nil {
		fmt.Printf("%s✗ %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
}

func run() error {
	printHeader()
	ctx := context.Background()

	// In-process server on a memory store so the demo can seed jobs.
	st := memory.New()
	svc := ack.NewService(st, ack.WithLogger(zap.NewNop()), ack.WithBackendName("memory"))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: api.NewHandler(svc, 5*time.Second)}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("%s✗ server: %v%s\n", colorRed, err, colorReset)
		}
	}()
	defer srv.Shutdown(ctx)

	baseURL := "http://" + ln.Addr().String()
	fmt.Printf("%s✓ Server listening on %s%s\n\n", colorGreen, baseURL, colorReset)
	c := client.NewClient(baseURL)

	orders := queue.MustParse("orders")
	ids := make([]string, demoJobs)
	for i := range ids {
		id := queue.NewJobID()
		if err := st.Insert(ctx, queue.Job{Queue: orders, ID: id}); err != nil {
			return err
		}
		ids[i] = id.String()
	}

	if err := scenarioSingleAck(ctx, c, ids[0]); err != nil {
		return err
	}
	if err := scenarioCompetingWorkers(ctx, c, ids[1:]); err != nil {
		return err
	}
	displayMetrics(baseURL)

	printFooter()
	return nil
}

func scenarioSingleAck(ctx context.Context, c *client.Client, id string) error {
	printScenario("Scenario 1: Acknowledge once, then again")

	fmt.Printf("%s→ Acknowledging job %s as worker w1...%s\n", colorYellow, id, colorReset)
	ok, err := c.Acknowledge(ctx, "orders", id, map[string]any{"worker": "w1"})
	if err != nil {
		return err
	}
	fmt.Printf("%s  ✓ success=%t%s\n", colorGreen, ok, colorReset)

	fmt.Printf("%s→ Acknowledging the same job as worker w2...%s\n", colorYellow, colorReset)
	ok, err = c.Acknowledge(ctx, "orders", id, map[string]any{"worker": "w2"})
	if err != nil {
		return err
	}
	fmt.Printf("%s  ✓ success=%t (first acknowledgment kept)%s\n", colorGreen, ok, colorReset)

	fmt.Printf("%s→ Acknowledging it through the wrong queue...%s\n", colorYellow, colorReset)
	ok, err = c.Acknowledge(ctx, "billing", id, nil)
	if err != nil {
		return err
	}
	fmt.Printf("%s  ✓ success=%t%s\n", colorGreen, ok, colorReset)

	job, err := c.GetJob(ctx, "orders", id)
	if err != nil {
		return err
	}
	fmt.Printf("    Stored acknowledgment: %v\n\n", job.Acknowledgment)
	return nil
}

func scenarioCompetingWorkers(ctx context.Context, c *client.Client, ids []string) error {
	printScenario("Scenario 2: Three workers race for the same jobs")

	var mu sync.Mutex
	winners := make(map[string]string)
	lost := 0
	record := func(res worker.Result) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case res.Err != nil:
			fmt.Printf("%s  ✗ %s on %s: %v%s\n", colorRed, res.Worker, res.Task.JobID, res.Err, colorReset)
		case res.Acknowledged:
			winners[res.Task.JobID] = res.Worker
		default:
			lost++
		}
	}

	var wg sync.WaitGroup
	for _, name := range []string{"w1", "w2", "w3"} {
		tasks := make(chan worker.Task, len(ids))
		for _, id := range ids {
			tasks <- worker.Task{Queue: "orders", JobID: id}
		}
		close(tasks)

		w := worker.New(c, worker.Config{Name: name, Concurrency: 2, OnResult: record})
		w.Handle("orders", func(ctx context.Context, task worker.Task) (map[string]any, error) {
			time.Sleep(10 * time.Millisecond)
			return map[string]any{"processed_at": time.Now().UTC().Format(time.RFC3339Nano)}, nil
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Run(ctx, tasks)
		}()
	}
	wg.Wait()

	for _, id := range ids {
		fmt.Printf("%s  ✓ %s acknowledged by %s%s\n", colorGreen, id, winners[id], colorReset)
	}
	fmt.Printf("%s  ✓ %d losing attempts were rejected%s\n\n", colorGreen, lost, colorReset)
	return nil
}

func displayMetrics(baseURL string) {
	printScenario("Live Prometheus Metrics")

	resp, err := http.Get(baseURL + "/metrics")
	if err != nil {
		fmt.Printf("%s✗ Failed to fetch metrics%s\n", colorRed, colorReset)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	for _, line := range strings.Split(string(body), "\n") {
		if !strings.HasPrefix(line, "monjobs_acknowledgments_total") &&
			!strings.HasPrefix(line, "monjobs_acknowledged_jobs_total") {
			continue
		}
		name, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		fmt.Printf("%s%-60s%s %s%s%s\n",
			colorCyan, name, colorReset,
			colorGreen+colorBold, value, colorReset)
	}
}

func printHeader() {
	fmt.Print(colorCyan + colorBold)
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║         MONJOBS - EXACTLY-ONCE ACKNOWLEDGMENT DEMO        ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Print(colorReset)
	fmt.Println()
}

func printFooter() {
	fmt.Println()
	fmt.Print(colorCyan)
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    Demo Complete!                         ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Print(colorReset)
}

func printScenario(title string) {
	fmt.Printf("%s%s┌─────────────────────────────────────────────────────────────┐%s\n",
		colorBold, colorMagenta, colorReset)
	fmt.Printf("%s%s│ %-59s │%s\n",
		colorBold, colorMagenta, title, colorReset)
	fmt.Printf("%s%s└─────────────────────────────────────────────────────────────┘%s\n",
		colorBold, colorMagenta, colorReset)
}
