package instance

import (
	"bufio"
	"net"
	"strconv"
	"time"

	"github.com/hostlink/hostlink/internal/domain"
	"github.com/hostlink/hostlink/internal/protocol"
)

// probeLine is the unauthenticated info request sent to every candidate
// port during discovery.
var probeLine = []byte(`{"type":"get_instance_info"}` + "\n")

// Probe connects to host:port, asks for instance info, and reports whether
// a live hostlink instance answered.  Every failure mode (refused
// connection, foreign service, garbage reply, slow peer) yields ok=false;
// discovery is best-effort by contract.
func Probe(host string, port int, timeout time.Duration) (domain.DiscoveredInstance, bool) {
	var d domain.DiscoveredInstance

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return d, false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write(probeLine); err != nil {
		return d, false
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return d, false
	}
	resp, err := protocol.DecodeResponse(line)
	if err != nil || !resp.Succeeded() {
		return d, false
	}
	if name, _ := resp["server"].(string); name != domain.ServerName {
		return d, false
	}

	d.Port = port
	d.InstanceID, _ = resp["instance_id"].(string)
	d.Project, _ = resp["project"].(string)
	d.Version, _ = resp["version"].(string)
	d.TokenRequired, _ = resp["token_required"].(bool)
	if up, ok := resp["uptime"].(float64); ok {
		d.Uptime = int(up)
	}
	return d, true
}

// Discover probes every port in [base, base+count) concurrently and returns
// the instances that answered, ordered by port.
func Discover(host string, base, count int, timeout time.Duration) []domain.DiscoveredInstance {
	type result struct {
		d  domain.DiscoveredInstance
		ok bool
	}
	results := make([]result, count)
	done := make(chan int, count)
	for i := 0; i < count; i++ {
		i := i
		go func() {
			results[i].d, results[i].ok = Probe(host, base+i, timeout)
			done <- i
		}()
	}
	for n := 0; n < count; n++ {
		<-done
	}

	var found []domain.DiscoveredInstance
	for _, r := range results {
		if r.ok {
			found = append(found, r.d)
		}
	}
	return found
}

// portFree reports whether nothing accepts TCP connections on host:port.
func portFree(host string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return true
	}
	conn.Close()
	return false
}

// FindAvailablePort returns the first port in [base, base+count) with no
// listener.  When the whole range is occupied it returns base and lets the
// subsequent bind fail with a real error.
func FindAvailablePort(host string, base, count int, timeout time.Duration) int {
	for i := 0; i < count; i++ {
		if portFree(host, base+i, timeout) {
			return base + i
		}
	}
	return base
}
