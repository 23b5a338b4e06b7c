package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/jessevdk/go-flags"
)

var opts struct {
	Addr string `short:"a" long:"addr" description:"base address of the running server" default:"http://localhost:8000"`
	Key  string `short:"k" long:"key" description:"api key, when key auth is enabled"`
}

const usage = `usage: ezr-ctl [options] COMMAND
  status                 show the current redirect state
  set URL                set the permanent redirect target
  temp URL SECONDS       set a temporary redirect target
  default URL            set the fallback target
  presets                list presets
  add NAME URL           add or update a preset
  del NAME               delete a preset
  preset NAME [SECONDS]  activate a preset, optionally temporarily
  history                show recent redirect changes`

func main() {
	args, err := flags.Parse(&opts)
	if err != nil {
		log.Fatalln(err)
	}
	if len(args) == 0 {
		log.Fatalln(usage)
	}
	switch args[0] {
	case "status":
		call("GET", "/api/current", nil)
	case "set":
		requireArgs(args, 2)
		call("POST", "/api/set", map[string]interface{}{"url": args[1]})
	case "temp":
		requireArgs(args, 3)
		call("POST", "/api/temp", map[string]interface{}{"url": args[1], "seconds": atoi(args[2])})
	case "default":
		requireArgs(args, 2)
		call("POST", "/api/set-default", map[string]interface{}{"url": args[1]})
	case "presets":
		call("GET", "/api/presets", nil)
	case "add":
		requireArgs(args, 3)
		call("POST", "/api/presets/add", map[string]interface{}{"name": args[1], "url": args[2]})
	case "del":
		requireArgs(args, 2)
		call("POST", "/api/presets/delete", map[string]interface{}{"name": args[1]})
	case "preset":
		requireArgs(args, 2)
		body := map[string]interface{}{"name": args[1]}
		if len(args) > 2 {
			body["seconds"] = atoi(args[2])
		}
		call("POST", "/api/preset/activate", body)
	case "history":
		call("GET", "/api/history", nil)
	default:
		log.Fatalln(usage)
	}
}

func requireArgs(args []string, n int) {
	if len(args) < n {
		log.Fatalln(usage)
	}
}

func atoi(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Fatalf("%q is not an integer", s)
	}
	return v
}

func call(method, path string, body map[string]interface{}) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			log.Fatalln(err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, opts.Addr+path, reader)
	if err != nil {
		log.Fatalln(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.Key != "" {
		req.Header.Set("X-API-Key", opts.Key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalln(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalln(err)
	}
	if resp.StatusCode >= 400 {
		log.Fatalf("%s: %s", resp.Status, bytes.TrimSpace(raw))
	}
	var indented bytes.Buffer
	if json.Indent(&indented, raw, "", "    ") == nil {
		fmt.Println(indented.String())
	} else {
		fmt.Println(string(raw))
	}
}
