package maps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ValentinKolb/dMap/cmd/util"
	"github.com/ValentinKolb/dMap/rpc/client"
	"github.com/ValentinKolb/dMap/rpc/filter"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Prints the change events of the map until interrupted",
	Long: `Prints the change events of the map until interrupted.

Without flags all entries are watched. --key restricts the listener to a
single key, --where to entries whose value has a property with the given
value (e.g. --where status=active).`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func init() {
	key := "key"
	listenCmd.Flags().String(key, "", util.WrapString("Only watch this key"))
	key = "where"
	listenCmd.Flags().String(key, "", util.WrapString("Only watch entries matching property=value (the value is parsed as JSON)"))
	key = "lite"
	listenCmd.Flags().Bool(key, false, util.WrapString("Receive events without old and new values"))
	key = "metrics-addr"
	listenCmd.Flags().String(key, "", util.WrapString("Address to serve client metrics in prometheus format on (e.g. :9090)"))
}

func runListen(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := cmd.Flags()
	watchKey, _ := flags.GetString("key")
	where, _ := flags.GetString("where")
	lite, _ := flags.GetBool("lite")
	metricsAddr, _ := flags.GetString("metrics-addr")

	if watchKey != "" && where != "" {
		return fmt.Errorf("--key and --where can not be combined")
	}

	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr)
		defer srv.Shutdown(context.Background())
	}

	removeConn := session.AddConnectivityListener(func(ev client.ConnectivityEvent) {
		fmt.Printf("connection %s\n", ev)
	})
	defer removeConn()

	lifecycle := client.NewMapLifecycleListener[string, any]().
		WhenTruncated(func(m *client.NamedMap[string, any]) {
			fmt.Printf("map=%s truncated\n", m.Name())
		}).
		WhenDestroyed(func(m *client.NamedMap[string, any]) {
			fmt.Printf("map=%s destroyed\n", m.Name())
			stop()
		})

	listener := client.NewMapListener[string, any]().
		WhenAny(func(ev *client.MapEvent[string, any]) {
			printEvent(ev, lite)
		})

	reqCtx, cancel := requestContext(cmd)
	defer cancel()

	if err := namedMap.AddLifecycleListener(reqCtx, lifecycle); err != nil {
		return err
	}
	defer namedMap.RemoveLifecycleListener(lifecycle)

	switch {
	case watchKey != "":
		if err := namedMap.AddKeyListener(reqCtx, listener, watchKey, lite); err != nil {
			return err
		}
	case where != "":
		f, err := parseWhere(where)
		if err != nil {
			return err
		}
		if err := namedMap.AddFilterListener(reqCtx, listener, f, lite); err != nil {
			return err
		}
	default:
		if err := namedMap.AddListener(reqCtx, listener, lite); err != nil {
			return err
		}
	}

	fmt.Printf("listening on map=%s (press ctrl+c to stop)\n", namedMap.Name())
	<-ctx.Done()
	return nil
}

// parseWhere builds an equality filter from property=value
func parseWhere(where string) (*filter.Filter, error) {
	property, value, ok := strings.Cut(where, "=")
	if !ok || property == "" {
		return nil, fmt.Errorf("invalid --where %q, expected property=value", where)
	}
	return filter.Equal(filter.Extract(property), parseValue(value)), nil
}

// printEvent writes one event line, values are omitted for lite listeners
func printEvent(ev *client.MapEvent[string, any], lite bool) {
	key, err := ev.Key()
	if err != nil {
		fmt.Printf("%s: %v\n", ev.Type(), err)
		return
	}
	if lite {
		fmt.Printf("%s key=%s\n", ev.Type(), key)
		return
	}

	render := func(v *any, err error) string {
		switch {
		case err != nil:
			return err.Error()
		case v == nil:
			return "-"
		default:
			return formatValue(*v)
		}
	}
	fmt.Printf("%s key=%s old=%s new=%s\n", ev.Type(), key, render(ev.OldValue()), render(ev.NewValue()))
}

// serveMetrics exposes the counters of the client on addr/metrics
func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, false)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics endpoint failed: %v\n", err)
		}
	}()
	fmt.Printf("serving metrics on %s/metrics\n", addr)
	return srv
}
