package portal

import (
	"net"
	"net/netip"

	"github.com/miekg/dns"

	"github.com/muurk/screenlink/internal/logging"
)

// answerTTL keeps client caches short so names resolve normally soon after
// the portal closes.
const answerTTL = 60

// resolver answers every A (and ANY) question with the portal address.
// Other types get an empty NOERROR reply.
type resolver struct {
	answer net.IP
}

func newResolver(addr netip.Addr) *resolver {
	return &resolver{answer: net.IP(addr.AsSlice())}
}

// ServeDNS implements dns.Handler.
func (r *resolver) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true
	m.RecursionAvailable = false

	if req.Opcode != dns.OpcodeQuery {
		m.SetRcode(req, dns.RcodeNotImplemented)
		_ = w.WriteMsg(m)
		return
	}

	for _, q := range req.Question {
		answered := false
		if q.Qclass == dns.ClassINET && (q.Qtype == dns.TypeA || q.Qtype == dns.TypeANY) {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{
					Name:   q.Name,
					Rrtype: dns.TypeA,
					Class:  dns.ClassINET,
					Ttl:    answerTTL,
				},
				A: r.answer,
			})
			answered = true
		}
		logging.LogDNSQuery(w.RemoteAddr().String(), q.Name, dns.TypeToString[q.Qtype], answered)
	}

	_ = w.WriteMsg(m)
}
