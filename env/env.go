package env

import (
	"fmt"
	"os"

	"github.com/golang/glog"
)

var (
	TestStorageBucket = GetEnv("BENCHMARK_BUCKET", "")
	TestTitle         = GetEnv("BENCHMARK_TITLE", "untitled")
	TestConfigFile    = GetEnv("BENCHMARK_CONFIG_FILE", "commbench.ini")
	TestVerbose       = GetEnv("BENCHMARK_VERBOSE", "")
	TestTransport     = GetEnv("BENCHMARK_TRANSPORT", "")
	TestRank          = GetEnv("BENCHMARK_RANK", "")
	TestPeers         = GetEnv("BENCHMARK_PEERS", "")
	TestNP            = GetEnv(NPVar, "")
	TestAccessToken   = GetEnv("BENCHMARK_ACCESS_TOKEN", "")
)

const (
	RankVar      = "BENCHMARK_RANK"
	PeersVar     = "BENCHMARK_PEERS"
	TransportVar = "BENCHMARK_TRANSPORT"
	NPVar        = "BENCHMARK_NP"
)

func GetEnv(name, defval string) string {
	if r := os.Getenv(name); r != "" {
		return r
	}
	return defval
}

func Print(x ...interface{}) {
	if TestVerbose == "true" {
		glog.InfoDepth(1, fmt.Sprint(x...))
	}
}
