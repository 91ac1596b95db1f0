//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/bastionhq/bastion/internal/coordinator"
	"github.com/bastionhq/bastion/internal/domain"
	"github.com/bastionhq/bastion/internal/infra"
	"github.com/bastionhq/bastion/internal/usecase"
)

var _ = Describe("Enforcement Loop", func() {
	var (
		dataDir   string
		hostsPath string
		store     *infra.Store
		coord     *coordinator.Coordinator
		verifier  *usecase.Argon2Verifier
		cancel    context.CancelFunc
		done      chan struct{}
	)

	BeforeEach(func() {
		var err error
		dataDir, err = os.MkdirTemp("", "bastion-enforce-*")
		Expect(err).NotTo(HaveOccurred())

		hostsPath = filepath.Join(dataDir, "hosts")
		Expect(os.WriteFile(hostsPath, []byte("127.0.0.1 localhost\n"), 0o644)).To(Succeed())

		key, err := infra.EnsureStoreKey(dataDir)
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewStore(dataDir, key)
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		clock := infra.NewSystemClock()
		verifier = usecase.NewArgon2Verifier(store)
		hosts := infra.NewHostsManager(hostsPath, logger)
		session := usecase.NewSessionMachine(clock, verifier, store, logger)
		phase := usecase.NewPhaseMachine(domain.DefaultPhaseConfig(), session.HardcoreLocked, store, logger)
		driver := usecase.NewEnforcementDriver(hosts, nil, clock, time.Second, logger)

		coord = coordinator.New(
			coordinator.Config{TickInterval: 20 * time.Millisecond, DedupCooldown: time.Minute},
			clock, session, phase, driver, store, hosts, nil, store, store, logger)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan struct{})
		go func() {
			defer close(done)
			coord.Run(ctx)
		}()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(BeClosed())
		store.Close()
		os.RemoveAll(dataDir)
	})

	readHosts := func() string {
		data, err := os.ReadFile(hostsPath)
		Expect(err).NotTo(HaveOccurred())
		return string(data)
	}

	Context("with a blocked site and a running session", func() {
		BeforeEach(func() {
			_, err := store.AddBlockedSite("reddit.com", "social")
			Expect(err).NotTo(HaveOccurred())
		})

		It("writes the hosts block while running and lifts it on stop", func() {
			_, err := coord.StartSession("focus", 30*time.Minute, false)
			Expect(err).NotTo(HaveOccurred())

			Eventually(readHosts, time.Second, 10*time.Millisecond).
				Should(ContainSubstring("127.0.0.1 reddit.com"))
			Expect(readHosts()).To(ContainSubstring("www.reddit.com"))

			Expect(coord.StopSession()).To(Succeed())

			Eventually(readHosts, time.Second, 10*time.Millisecond).
				ShouldNot(ContainSubstring("reddit.com"))
			Expect(readHosts()).To(ContainSubstring("localhost"))
		})

		It("records the interception once within the cooldown", func() {
			_, err := coord.StartSession("focus", 30*time.Minute, false)
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() int {
				events, err := store.GetRecentBlocks(10)
				Expect(err).NotTo(HaveOccurred())
				return len(events)
			}, time.Second, 10*time.Millisecond).Should(Equal(1))

			// Enforcement keeps running, but the event is not repeated.
			Consistently(func() int {
				events, _ := store.GetRecentBlocks(10)
				return len(events)
			}, 200*time.Millisecond, 20*time.Millisecond).Should(Equal(1))
		})
	})

	Context("with a hardcore session", func() {
		BeforeEach(func() {
			Expect(verifier.SetSecret("open sesame")).To(Succeed())
			_, err := coord.StartSession("deep work", 30*time.Minute, true)
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses stop and wrong overrides, yields to the secret", func() {
			Expect(coord.StopSession()).To(MatchError(domain.ErrLocked))
			Expect(coord.OverrideStopSession("wrong")).To(MatchError(domain.ErrUnauthorized))
			Expect(coord.Snapshot().Session.Active).To(BeTrue())

			Expect(coord.OverrideStopSession("open sesame")).To(Succeed())
			Expect(coord.Snapshot().Session.Active).To(BeFalse())
		})
	})

	Context("after a daemon restart", func() {
		It("resumes a persisted hardcore session", func() {
			_, err := coord.StartSession("deep work", 30*time.Minute, true)
			Expect(err).NotTo(HaveOccurred())

			// A second coordinator stack over the same store stands in
			// for a restarted process.
			logger := zap.NewNop()
			clock := infra.NewSystemClock()
			v := usecase.NewArgon2Verifier(store)
			session := usecase.NewSessionMachine(clock, v, store, logger)
			Expect(session.Restore()).To(Succeed())

			snap := session.Tick(clock.Now())
			Expect(snap.Active).To(BeTrue())
			Expect(snap.HardcoreLocked).To(BeTrue())
			Expect(snap.Label).To(Equal("deep work"))
		})
	})

	It("leaves user entries untouched through a block cycle", func() {
		existing := readHosts()
		Expect(strings.Contains(existing, "localhost")).To(BeTrue())

		_, err := store.AddBlockedSite("youtube.com", "")
		Expect(err).NotTo(HaveOccurred())
		_, err = coord.StartSession("focus", 30*time.Minute, false)
		Expect(err).NotTo(HaveOccurred())

		Eventually(readHosts, time.Second, 10*time.Millisecond).
			Should(ContainSubstring("youtube.com"))

		Expect(coord.StopSession()).To(Succeed())
		Eventually(readHosts, time.Second, 10*time.Millisecond).
			ShouldNot(ContainSubstring("youtube.com"))
		Expect(readHosts()).To(ContainSubstring("127.0.0.1 localhost"))
	})
})
