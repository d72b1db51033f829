// ABOUTME: In-process study registry for tests, served over bufconn
// ABOUTME: Records calls and lets tests inject per-method failures and delays

// Package ledgertest provides an in-memory study registry reachable over a
// real gRPC connection, so client code is exercised end to end.
package ledgertest

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/2389/healthledger/internal/ledger"
)

// Server is a fake registry. The zero value is not usable; call New.
type Server struct {
	mu          sync.Mutex
	studies     []ledger.Study
	stats       map[uint64]ledger.StudyStats
	studyErrs   map[uint64]error
	statsErrs   map[uint64]error
	counterErr  error
	rejectWith  string
	submissions []ledger.Submission
	calls       map[string]int
	authHeaders []string
	secret      []byte
	block       uint64
	hook        func(ctx context.Context, method string)
}

// New creates an empty registry.
func New() *Server {
	return &Server{
		stats:     make(map[uint64]ledger.StudyStats),
		studyErrs: make(map[uint64]error),
		statsErrs: make(map[uint64]error),
		calls:     make(map[string]int),
	}
}

// WithSecret makes CreateStudy derive the creator from the caller's bearer token.
func (s *Server) WithSecret(secret []byte) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = secret
	return s
}

// AddStudy appends a study, assigns it the next id and returns that id.
func (s *Server) AddStudy(st ledger.Study) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.ID = uint64(len(s.studies))
	s.studies = append(s.studies, st)
	return st.ID
}

// SetActive flips a study's active flag.
func (s *Server) SetActive(id uint64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.studies[id].IsActive = active
}

// SetStats sets the aggregate record returned for a study.
func (s *Server) SetStats(id uint64, st ledger.StudyStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[id] = st
}

// FailStudy makes GetStudy(id) return err; nil clears the failure.
func (s *Server) FailStudy(id uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.studyErrs, id)
		return
	}
	s.studyErrs[id] = err
}

// FailStats makes GetStudyStats(id) return err; nil clears the failure.
func (s *Server) FailStats(id uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.statsErrs, id)
		return
	}
	s.statsErrs[id] = err
}

// FailCounter makes StudyCounter return err; nil clears the failure.
func (s *Server) FailCounter(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterErr = err
}

// RejectSubmissions makes SubmitData revert with reason; "" accepts again.
func (s *Server) RejectSubmissions(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectWith = reason
}

// OnCall installs a hook run at the start of every method, outside the lock.
// Hooks may block to simulate a slow registry.
func (s *Server) OnCall(hook func(ctx context.Context, method string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Calls returns how many times a method was invoked.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// TotalCalls returns the number of invocations across all methods.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Submissions returns a copy of every accepted submission.
func (s *Server) Submissions() []ledger.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Submission, len(s.submissions))
	copy(out, s.submissions)
	return out
}

// AuthHeaders returns the authorization metadata seen on each call.
func (s *Server) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.authHeaders))
	copy(out, s.authHeaders)
	return out
}

// Start serves the registry on an in-memory listener and returns a client
// connected to it. Everything is torn down when the test ends.
func (s *Server) Start(t testing.TB, opts ...grpc.DialOption) *ledger.Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.UnaryInterceptor(s.recordAuth))
	ledger.RegisterStudyRegistryServer(gs, s)
	go func() { _ = gs.Serve(lis) }()

	dialOpts := append([]grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient("passthrough:///bufnet", dialOpts...)
	if err != nil {
		t.Fatalf("dialing bufconn registry: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
	})

	return ledger.NewClient(conn, slog.Default())
}

func (s *Server) recordAuth(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		s.mu.Lock()
		s.authHeaders = append(s.authHeaders, strings.Join(md.Get("authorization"), ","))
		s.mu.Unlock()
	}
	return handler(ctx, req)
}

func (s *Server) enter(ctx context.Context, method string) {
	s.mu.Lock()
	s.calls[method]++
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(ctx, method)
	}
}

// StudyCounter implements ledger.StudyRegistryServer.
func (s *Server) StudyCounter(ctx context.Context) (uint64, error) {
	s.enter(ctx, ledger.MethodStudyCounter)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counterErr != nil {
		return 0, s.counterErr
	}
	return uint64(len(s.studies)), nil
}

// GetStudy implements ledger.StudyRegistryServer.
func (s *Server) GetStudy(ctx context.Context, id uint64) (*ledger.Study, error) {
	s.enter(ctx, ledger.MethodGetStudy)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.studyErrs[id]; ok {
		return nil, err
	}
	if id >= uint64(len(s.studies)) {
		return nil, ledger.ErrStudyNotFound
	}
	st := s.studies[id]
	return &st, nil
}

// GetStudyStats implements ledger.StudyRegistryServer.
func (s *Server) GetStudyStats(ctx context.Context, id uint64) (*ledger.StudyStats, error) {
	s.enter(ctx, ledger.MethodGetStudyStats)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.statsErrs[id]; ok {
		return nil, err
	}
	if id >= uint64(len(s.studies)) {
		return nil, ledger.ErrStudyNotFound
	}
	st := s.stats[id]
	return &st, nil
}

// SubmitData implements ledger.StudyRegistryServer.
func (s *Server) SubmitData(ctx context.Context, sub *ledger.Submission) (*ledger.Receipt, error) {
	s.enter(ctx, ledger.MethodSubmitData)

	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.StudyID >= uint64(len(s.studies)) {
		return nil, ledger.ErrStudyNotFound
	}
	s.block++
	receipt := &ledger.Receipt{
		TxHash:      common.BytesToHash([]byte(fmt.Sprintf("submit-%d", s.block))),
		BlockNumber: s.block,
	}

	switch {
	case !s.studies[sub.StudyID].IsActive:
		receipt.Status = ledger.StatusReverted
		receipt.RevertReason = "study is not active"
		return receipt, nil
	case sub.MinValue > sub.MaxValue:
		return nil, &ledger.RevertError{Reason: "invalid range"}
	case s.rejectWith != "":
		return nil, &ledger.RevertError{Reason: s.rejectWith}
	}

	s.submissions = append(s.submissions, *sub)
	s.studies[sub.StudyID].DataCount++

	receipt.Status = ledger.StatusConfirmed
	receipt.Events = []ledger.Event{{
		Name: ledger.EventDataSubmitted,
		Args: map[string]string{
			"studyId":        strconv.FormatUint(sub.StudyID, 10),
			"encryptedValue": sub.Handle.Hex(),
		},
	}}
	return receipt, nil
}

// CreateStudy implements ledger.StudyRegistryServer.
func (s *Server) CreateStudy(ctx context.Context, name, description string) (*ledger.Receipt, error) {
	s.enter(ctx, ledger.MethodCreateStudy)

	creator, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uint64(len(s.studies))
	s.studies = append(s.studies, ledger.Study{
		ID:          id,
		Name:        name,
		Description: description,
		Creator:     creator,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		IsActive:    true,
	})
	s.block++

	return &ledger.Receipt{
		TxHash:      common.BytesToHash([]byte(fmt.Sprintf("create-%d", s.block))),
		BlockNumber: s.block,
		Status:      ledger.StatusConfirmed,
		Events: []ledger.Event{{
			Name: ledger.EventStudyCreated,
			Args: map[string]string{
				"studyId":   strconv.FormatUint(id, 10),
				"creator":   creator.Hex(),
				"studyName": name,
			},
		}},
	}, nil
}

func (s *Server) caller(ctx context.Context) (common.Address, error) {
	s.mu.Lock()
	secret := s.secret
	s.mu.Unlock()

	if secret == nil {
		return common.Address{}, nil
	}

	md, _ := metadata.FromIncomingContext(ctx)
	header := strings.Join(md.Get("authorization"), "")
	sub, err := ledger.VerifyToken(secret, strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return common.Address{}, err
	}
	return ledger.AddressFromHex(sub)
}
