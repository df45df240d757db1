//go:build !tinygo

// crashview prints the crash record a previous run persisted.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"quartz/internal/crashrec"
	"quartz/quartzos/kernel"
)

func main() {
	path := flag.String("f", "quartz.crash", "Crash record file.")
	flag.Parse()

	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rec, err := crashrec.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode %s: %v\n", *path, err)
		os.Exit(1)
	}

	fmt.Printf("time:    %s\n", rec.Time.Format(time.RFC3339))
	fmt.Printf("kind:    %s\n", kernel.FatalKind(rec.Kind))
	fmt.Printf("dest:    %s\n", kernel.ContextID(rec.Dest))
	fmt.Printf("pc:      0x%x\n", rec.PC)
	fmt.Printf("func:    %s\n", rec.Func)
	fmt.Printf("reason:  %s\n", rec.Reason)
	fmt.Printf("current: %s\n", eventString(rec.Current))
	fmt.Printf("dropped: %s\n", eventString(rec.Dropped))
}

func eventString(id crashrec.EventID) string {
	if id.Kind == 0 && id.Source == 0 && id.A == 0 && id.B == 0 {
		return "none"
	}
	return fmt.Sprintf("kind=0x%x source=%s a=%d b=%d",
		id.Kind, kernel.ContextID(id.Source), id.A, id.B)
}
