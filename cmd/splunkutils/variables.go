package main

import (
	"net/http"
	"time"
)

// options holds every flag value of one command tree.
type options struct {
	configFile  string
	logLevel    string
	metricsAddr string

	protocol      string
	server        string
	port          string
	endpoint      string
	url           string
	token         string
	index         string
	source        string
	sourceType    string
	gzip          bool
	keepAlive     bool
	clientTimeout time.Duration

	file               string
	blockSize          int
	splitOversized     bool
	journalDir         string
	journalMaxAge      int
	journalCompressAge int
	awsRegion          string

	fields    []string
	delimiter string

	metricsServer *http.Server
}
