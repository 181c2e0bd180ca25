package controllers_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/acoustic"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/controllers"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/hazard"
)

var _ = Describe("FleetCommander", func() {
	var (
		commander *controllers.FleetCommander
		network   *acoustic.Network
		vehicles  []*fakeVehicle
	)

	BeforeEach(func() {
		settings := controllers.DefaultSettings()
		network = acoustic.NewNetwork(core.NewManualClock(time.Unix(0, 0)), nil, 3)
		commander = controllers.NewFleetCommander(nil)
		vehicles = nil

		var leaderModem *acoustic.Modem
		for i := 0; i < 3; i++ {
			m, err := network.Join(acoustic.ChannelSettings{})
			Expect(err).ToNot(HaveOccurred())
			v := newFakeVehicle(float64(i)*10, -10, 0)
			vehicles = append(vehicles, v)

			var c *controllers.GuidanceController
			if i == 0 {
				leaderModem = m
				c = controllers.NewLeader(0, v, m, settings)
			} else {
				c = controllers.NewFollower(acoustic.NodeID(i), v, m, leaderModem, settings)
			}
			Expect(commander.Add(c)).To(Succeed())
		}
	})

	It("should keep controller index equal to node id", func() {
		stray := controllers.NewFollower(7, newFakeVehicle(0, 0, 0), nil, nil, controllers.DefaultSettings())
		Expect(commander.Add(stray)).ToNot(Succeed())
		Expect(commander.Len()).To(Equal(3))
	})

	Describe("DispatchTarget", func() {
		It("should reject unknown ids without touching any controller", func() {
			for _, id := range []int{-1, 3, 99} {
				err := commander.DispatchTarget(id, 1, 2)
				Expect(err).To(MatchError(controllers.ErrInvalidNodeID))
			}
			for _, c := range commander.Controllers() {
				_, ok := c.Target()
				Expect(ok).To(BeFalse())
			}
		})

		It("should keep the current depth by default", func() {
			Expect(commander.DispatchTarget(1, 30, 50)).To(Succeed())

			c, _ := commander.Controller(1)
			target, ok := c.Target()
			Expect(ok).To(BeTrue())
			Expect(target).To(Equal(core.Vec(30, -10, 50)))
			Expect(c.AIEnabled()).To(BeTrue())
		})

		It("should apply depth and AI options and clear manual mode", func() {
			c, _ := commander.Controller(2)
			c.SetManualOverride(true)

			Expect(commander.DispatchTarget(2, 5, 6, controllers.WithDepth(-40), controllers.WithAI(false))).To(Succeed())

			target, _ := c.Target()
			Expect(target).To(Equal(core.Vec(5, -40, 6)))
			Expect(c.AIEnabled()).To(BeFalse())
			Expect(c.State()).To(Equal(controllers.StateSeeking))
		})
	})

	Describe("Stop", func() {
		It("should halt the addressed vehicle", func() {
			Expect(commander.DispatchTarget(1, 30, 50)).To(Succeed())
			Expect(commander.Stop(1)).To(Succeed())

			c, _ := commander.Controller(1)
			Expect(c.State()).To(Equal(controllers.StateNoTarget))
			Expect(vehicles[1].Moves()).To(ConsistOf(thrustOf(controllers.ThrustStop, 0)))
		})

		It("should reject unknown ids", func() {
			Expect(commander.Stop(3)).To(MatchError(controllers.ErrInvalidNodeID))
		})
	})

	Describe("Tick", func() {
		BeforeEach(func() {
			for i := 0; i < 3; i++ {
				depth := -10.0
				if i == 0 {
					depth = 0
				}
				Expect(commander.DispatchTarget(i, 100, 100, controllers.WithDepth(depth))).To(Succeed())
			}
		})

		It("should only update controllers that have a code", func() {
			Expect(commander.Tick([]hazard.Code{hazard.Obstacle})).To(Equal(1))

			Expect(vehicles[0].Moves()).ToNot(BeEmpty())
			Expect(vehicles[1].Moves()).To(BeEmpty())
			Expect(vehicles[2].Moves()).To(BeEmpty())
		})

		It("should ignore extra codes", func() {
			Expect(commander.Tick(hazard.NominalCodes(5))).To(Equal(3))
		})

		It("should match sequential results when run concurrently", func() {
			codes := []hazard.Code{hazard.Nominal, hazard.Collision, hazard.OutOfRange}
			n, err := commander.TickConcurrent(context.Background(), codes, 2)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(3))

			concurrent := make([][]controllers.Thrust, 3)
			for i, c := range commander.Controllers() {
				concurrent[i] = c.LastCommands()
			}

			commander.Tick(codes)
			for i, c := range commander.Controllers() {
				Expect(c.LastCommands()).To(Equal(concurrent[i]))
			}
		})

		It("should stop on a cancelled context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := commander.TickConcurrent(ctx, hazard.NominalCodes(3), 1)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("DistributeDirectory", func() {
		It("should reach the leader only", func() {
			Expect(commander.DistributeDirectory(network.Directory())).To(Equal(1))

			for _, c := range commander.Controllers() {
				if c.Role() == controllers.Leader {
					Expect(c.Modem().Directory()).To(HaveLen(3))
				} else {
					Expect(c.Modem().Directory()).To(BeEmpty())
				}
			}

			leader, ok := commander.Leader()
			Expect(ok).To(BeTrue())
			Expect(leader.ID()).To(Equal(acoustic.NodeID(0)))
		})
	})
})
