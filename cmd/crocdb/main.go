package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"crocdb/pkg/config"
	"crocdb/pkg/hash"
	"crocdb/pkg/repl"

	"github.com/google/uuid"
)

// Default port 8335 (BEES).
const DEFAULT_PORT int = 8335

// Listens for SIGINT or SIGTERM and closes the index.
func setupCloseHandler(index *hash.HashIndex) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("closehandler invoked")
		index.Close()
		os.Exit(0)
	}()
}

// Start listening for connections at port `port`, running the REPL on each.
func startServer(r *repl.REPL, prompt string, port int) {
	handleConn := func(c net.Conn) {
		clientId := uuid.New()
		defer c.Close()
		r.Run(clientId, prompt, c, c)
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%v server started listening on localhost:%v\n", config.DBName,
		listener.Addr().(*net.TCPAddr).Port)
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Print(err)
			continue
		}
		go handleConn(conn)
	}
}

// Start the index server.
func main() {
	var promptFlag = flag.Bool("c", true, "use prompt?")
	var fileFlag = flag.String("file", "data/"+config.DBName+".db", "index file")
	var tcpFlag = flag.Bool("tcp", false, "serve the REPL over tcp instead of stdin")
	var portFlag = flag.Int("port", DEFAULT_PORT, "port to listen on with -tcp")
	flag.Parse()

	index, err := hash.OpenIndex(*fileFlag)
	if err != nil {
		log.Fatal(err)
	}
	defer index.Close()
	setupCloseHandler(index)

	r := hash.IndexRepl(index)
	prompt := config.GetPrompt(*promptFlag)
	if *tcpFlag {
		startServer(r, prompt, *portFlag)
	} else {
		r.Run(uuid.New(), prompt, nil, nil)
	}
}
