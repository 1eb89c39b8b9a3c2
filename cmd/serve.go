package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-chorale/config"
	"go-chorale/playback"
)

var serveFlags struct {
	addr string
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address, host:port")
}

var serveCmd = &cobra.Command{
	Use:   "serve [score.json]",
	Short: "Serve playback over HTTP",
	Long: `Loads a score and exposes playback control and status over HTTP:

  POST /play    start the performance from the top
  POST /stop    stop and silence everything
  GET  /status  run info plus per-region and per-note state
  GET  /report  audit of the last observed run`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer gomidi.CloseDriver()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Serve.Addr = serveFlags.addr
		}

		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		perf, err := buildPerformance(cfg, path, "")
		if err != nil {
			return err
		}
		defer perf.close()

		router := mux.NewRouter().StrictSlash(true)
		router.HandleFunc("/play", handlePlay(perf)).Methods("POST")
		router.HandleFunc("/stop", handleStop(perf)).Methods("POST")
		router.HandleFunc("/status", handleStatus(perf)).Methods("GET")
		router.HandleFunc("/report", handleReport(perf)).Methods("GET")

		fmt.Printf("serving %q on http://%s\n", perf.title(), cfg.Serve.Addr)
		log.Fatal(http.ListenAndServe(cfg.Serve.Addr, cors.Default().Handler(router)))
		return nil
	},
}

type statusResponse struct {
	Title          string                `json:"title"`
	Playing        bool                  `json:"playing"`
	RunID          uint64                `json:"runId"`
	ElapsedSeconds float64               `json:"elapsedSeconds"`
	Regions        []playback.RegionView `json:"regions"`
	Melody         []playback.MelodyView `json:"melody"`
}

func handlePlay(perf *performance) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := perf.play(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleStop(perf *performance) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		perf.cond.Stop()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleStatus(perf *performance) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _, playing := perf.cond.RunInfo()
		res := statusResponse{
			Title:          perf.title(),
			Playing:        playing,
			RunID:          id,
			ElapsedSeconds: perf.cond.Elapsed().Seconds(),
			Regions:        perf.cond.RegionViews(),
			Melody:         perf.cond.MelodyViews(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}

func handleReport(perf *performance) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, ok := perf.cond.Report()
		if !ok {
			http.Error(w, "no run observed yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}
