package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gustycube/certwatch/internal/domains"
)

func main() {
	var file string
	var addr string
	var key string
	var remove bool
	flag.StringVar(&file, "domains", "", "path to domains file")
	flag.StringVar(&addr, "redis", "127.0.0.1:6379", "redis addr")
	flag.StringVar(&key, "key", "certwatch:domains", "redis domain set key")
	flag.BoolVar(&remove, "remove", false, "remove the listed domains instead of adding them")
	flag.Parse()
	if file == "" {
		fmt.Fprintln(os.Stderr, "missing -domains")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	list, err := domains.File{Path: file}.Domains(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cli, err := domains.Connect(ctx, addr, 10*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "redis:", err)
		os.Exit(1)
	}
	defer cli.Close()

	set := domains.NewRedis(cli, key)
	if remove {
		n, err := set.Remove(ctx, list...)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("removed %d of %d domains from %s\n", n, len(list), key)
		return
	}
	n, err := set.Add(ctx, list...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d new of %d domains into %s\n", n, len(list), key)
}
