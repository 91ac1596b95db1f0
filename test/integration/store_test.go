//go:build integration

package integration

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bastionhq/bastion/internal/domain"
	"github.com/bastionhq/bastion/internal/infra"
)

var _ = Describe("Encrypted Store", func() {
	var (
		dataDir string
		store   *infra.Store
	)

	BeforeEach(func() {
		var err error
		dataDir, err = os.MkdirTemp("", "bastion-integration-*")
		Expect(err).NotTo(HaveOccurred())

		key, err := infra.EnsureStoreKey(dataDir)
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.NewStore(dataDir, key)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(dataDir)
	})

	Describe("settings", func() {
		It("round-trips key/value pairs", func() {
			Expect(store.SetSetting("theme", "dark")).To(Succeed())

			value, ok, err := store.GetSetting("theme")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(value).To(Equal("dark"))

			_, ok, err = store.GetSetting("missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("block catalog", func() {
		It("serves only enabled entries as targets", func() {
			siteID, err := store.AddBlockedSite("reddit.com", "social")
			Expect(err).NotTo(HaveOccurred())
			_, err = store.AddBlockedApp("Steam", "steam.exe", "games")
			Expect(err).NotTo(HaveOccurred())

			targets, err := store.GetEnabledTargets(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(targets).To(ConsistOf(
				domain.BlockTarget{Kind: domain.KindSite, Identifier: "reddit.com"},
				domain.BlockTarget{Kind: domain.KindApplication, Identifier: "steam.exe"},
			))

			Expect(store.SetBlockedSiteEnabled(siteID, false)).To(Succeed())
			targets, err = store.GetEnabledTargets(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(targets).To(ConsistOf(
				domain.BlockTarget{Kind: domain.KindApplication, Identifier: "steam.exe"},
			))
		})

		It("deletes entries", func() {
			id, err := store.AddBlockedSite("news.ycombinator.com", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(store.DeleteBlockedSite(id)).To(Succeed())

			sites, err := store.GetBlockedSites()
			Expect(err).NotTo(HaveOccurred())
			Expect(sites).To(BeEmpty())
		})
	})

	Describe("session persistence", func() {
		It("survives a store reopen with the same key", func() {
			session := &domain.FocusSession{
				ID:              "s-1",
				Label:           "deep work",
				PlannedDuration: time.Hour,
				StartedAt:       time.Now().UTC().Truncate(time.Second),
				Hardcore:        true,
				Status:          domain.StatusRunning,
			}
			Expect(store.SaveActiveSession(session)).To(Succeed())
			Expect(store.Close()).To(Succeed())

			key, err := infra.EnsureStoreKey(dataDir)
			Expect(err).NotTo(HaveOccurred())
			store, err = infra.NewStore(dataDir, key)
			Expect(err).NotTo(HaveOccurred())

			loaded, err := store.LoadActiveSession()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).NotTo(BeNil())
			Expect(loaded.ID).To(Equal("s-1"))
			Expect(loaded.Hardcore).To(BeTrue())
			Expect(loaded.PlannedDuration).To(Equal(time.Hour))

			Expect(store.ClearActiveSession()).To(Succeed())
			loaded, err = store.LoadActiveSession()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeNil())
		})
	})

	Describe("schedules", func() {
		It("round-trips weekly windows", func() {
			id, err := store.AddSchedule(domain.Schedule{
				Name:      "mornings",
				Days:      []string{"Mon", "Tue", "Wed"},
				StartTime: "09:00",
				EndTime:   "12:00",
				Hardcore:  true,
				Enabled:   true,
			})
			Expect(err).NotTo(HaveOccurred())

			schedules, err := store.GetSchedules()
			Expect(err).NotTo(HaveOccurred())
			Expect(schedules).To(HaveLen(1))
			Expect(schedules[0].Days).To(Equal([]string{"Mon", "Tue", "Wed"}))
			Expect(schedules[0].Hardcore).To(BeTrue())

			Expect(store.DeleteSchedule(id)).To(Succeed())
			schedules, err = store.GetSchedules()
			Expect(err).NotTo(HaveOccurred())
			Expect(schedules).To(BeEmpty())
		})
	})

	Describe("history and stats", func() {
		It("records block events and protected time per day", func() {
			Expect(store.LogBlockEvent("reddit.com", domain.KindSite)).To(Succeed())
			Expect(store.LogBlockEvent("steam.exe", domain.KindApplication)).To(Succeed())
			Expect(store.AddProtectedTime(25)).To(Succeed())

			events, err := store.GetRecentBlocks(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))

			stats, err := store.GetStats(7)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(HaveLen(1))
			Expect(stats[0].BlocksCount).To(Equal(int64(2)))
			Expect(stats[0].MinutesProtected).To(Equal(int64(25)))
		})
	})

	Describe("phase config", func() {
		It("persists a custom configuration", func() {
			custom := domain.PhaseConfig{
				Work:                    50 * time.Minute,
				ShortBreak:              10 * time.Minute,
				LongBreak:               30 * time.Minute,
				IntervalsUntilLongBreak: 2,
			}
			Expect(store.SavePhaseConfig(custom)).To(Succeed())

			loaded, err := store.LoadPhaseConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).NotTo(BeNil())
			Expect(*loaded).To(Equal(custom))
		})
	})
})
