package controllers_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/acoustic"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/controllers"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/hazard"
)

var _ = Describe("GuidanceController", func() {
	var settings controllers.Settings

	BeforeEach(func() {
		settings = controllers.DefaultSettings()
	})

	Context("state machine", func() {
		var (
			vehicle *fakeVehicle
			gnc     *controllers.GuidanceController
		)

		BeforeEach(func() {
			vehicle = newFakeVehicle(0, -10, 0)
			gnc = controllers.NewFollower(1, vehicle, nil, nil, settings)
		})

		It("should start without a target", func() {
			Expect(gnc.State()).To(Equal(controllers.StateNoTarget))
			Expect(gnc.Update(hazard.Nominal)).To(BeEmpty())
			Expect(vehicle.Moves()).To(BeEmpty())
		})

		It("should seek once a target is assigned", func() {
			gnc.AssignTarget(0, -10, 10)
			Expect(gnc.State()).To(Equal(controllers.StateSeeking))
		})

		It("should stay inert under manual override", func() {
			gnc.AssignTarget(0, -10, 10)
			gnc.SetManualOverride(true)

			Expect(gnc.State()).To(Equal(controllers.StateManual))
			Expect(gnc.Update(hazard.Nominal)).To(BeEmpty())
			Expect(vehicle.Moves()).To(BeEmpty())
		})

		It("should engage route and AI flag together", func() {
			gnc.SetManualOverride(true)

			gnc.Engage(core.Vec(5, -20, 6), false)

			target, ok := gnc.Target()
			Expect(ok).To(BeTrue())
			Expect(target).To(Equal(core.Vec(5, -20, 6)))
			Expect(gnc.AIEnabled()).To(BeFalse())
			Expect(gnc.ManualOverride()).To(BeFalse())
			Expect(gnc.State()).To(Equal(controllers.StateSeeking))
		})

		It("should hold position inside the arrival radius", func() {
			gnc.AssignTarget(0, -10, 1.4)
			Expect(gnc.Update(hazard.Nominal)).To(BeEmpty())

			By("resuming when displaced")
			gnc.AssignTarget(0, -10, 1.6)
			Expect(gnc.Update(hazard.Nominal)).To(ConsistOf(thrustOf(controllers.ThrustForward, 100)))
		})

		It("should halt and forget the target", func() {
			gnc.AssignTarget(0, -10, 10)
			gnc.Halt()

			_, ok := gnc.Target()
			Expect(ok).To(BeFalse())
			Expect(vehicle.Moves()).To(ConsistOf(thrustOf(controllers.ThrustStop, 0)))
		})
	})

	Context("leader policy", func() {
		var (
			mockCtrl *gomock.Controller
			vehicle  *MockVehicle
			leader   *controllers.GuidanceController
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			vehicle = NewMockVehicle(mockCtrl)
			vehicle.EXPECT().Position().Return(core.Vec(0, 0, 0)).AnyTimes()
			leader = controllers.NewLeader(0, vehicle, nil, settings)
			leader.AssignTarget(10, 0, 0)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should thrust straight at the target when nominal", func() {
			vehicle.EXPECT().Move(controllers.ThrustRight, 100.0)
			leader.Update(hazard.Nominal)
		})

		It("should add a lateral bias near an obstacle", func() {
			vehicle.EXPECT().Move(controllers.ThrustRight, 200.0)
			leader.Update(hazard.Obstacle)
		})

		It("should freeze on a collision warning", func() {
			vehicle.EXPECT().Move(gomock.Any(), gomock.Any()).Times(0)
			Expect(leader.Update(hazard.Collision)).To(BeEmpty())
		})

		It("should ignore follower-only codes", func() {
			vehicle.EXPECT().Move(controllers.ThrustRight, 100.0).Times(2)
			leader.Update(hazard.Disconnected)
			leader.Update(hazard.OutOfRange)
		})
	})

	Context("leader depth", func() {
		It("should clamp a submerged target to the surface", func() {
			vehicle := newFakeVehicle(0, -5, 0)
			leader := controllers.NewLeader(0, vehicle, nil, settings)
			leader.AssignTarget(10, -5, 0)

			Expect(leader.Update(hazard.Nominal)).To(ConsistOf(thrustOf(controllers.ThrustRight, 100)))

			target, ok := leader.Target()
			Expect(ok).To(BeTrue())
			Expect(target.Y).To(Equal(0.0))
		})

		It("should use the tighter arrival radius", func() {
			vehicle := newFakeVehicle(0, 0, 0)
			leader := controllers.NewLeader(0, vehicle, nil, settings)
			leader.AssignTarget(0, 0, 1.2)

			Expect(leader.Update(hazard.Nominal)).To(ConsistOf(thrustOf(controllers.ThrustForward, 100)))
		})
	})

	Context("follower policy", func() {
		var (
			vehicle  *fakeVehicle
			follower *controllers.GuidanceController
		)

		BeforeEach(func() {
			vehicle = newFakeVehicle(0, -10, 0)
			follower = controllers.NewFollower(1, vehicle, nil, nil, settings)
			follower.AssignTarget(0, -10, 10)
		})

		DescribeTable("thrust per hazard code",
			func(code hazard.Code, expected []controllers.Thrust) {
				matchers := make([]any, len(expected))
				for i, t := range expected {
					matchers[i] = thrustOf(t.Command, t.Magnitude)
				}
				Expect(follower.Update(code)).To(ConsistOf(matchers...))
			},
			Entry("nominal", hazard.Nominal, []controllers.Thrust{
				{Command: controllers.ThrustForward, Magnitude: 100},
			}),
			Entry("obstacle climbs and backs off at half gain", hazard.Obstacle, []controllers.Thrust{
				{Command: controllers.ThrustUp, Magnitude: 50},
				{Command: controllers.ThrustBack, Magnitude: 20},
			}),
			Entry("collision recoils", hazard.Collision, []controllers.Thrust{
				{Command: controllers.ThrustBack, Magnitude: 140},
			}),
			Entry("disconnected drifts up", hazard.Disconnected, []controllers.Thrust{
				{Command: controllers.ThrustUp, Magnitude: 20},
			}),
			Entry("out of range pushes harder", hazard.OutOfRange, []controllers.Thrust{
				{Command: controllers.ThrustForward, Magnitude: 150},
			}),
			Entry("reserved code is nominal", hazard.Code(4), []controllers.Thrust{
				{Command: controllers.ThrustForward, Magnitude: 100},
			}),
			Entry("unknown code is nominal", hazard.Code(17), []controllers.Thrust{
				{Command: controllers.ThrustForward, Magnitude: 100},
			}),
		)

		It("should treat collisions as nominal with AI off", func() {
			follower.SetAIEnabled(false)
			blind := follower.Update(hazard.Collision)

			other := controllers.NewFollower(2, newFakeVehicle(0, -10, 0), nil, nil, settings)
			other.AssignTarget(0, -10, 10)
			nominal := other.Update(hazard.Nominal)

			Expect(blind).To(Equal(nominal))
			Expect(follower.LastHazard()).To(Equal(hazard.Collision))
		})

		It("should report the last commands issued", func() {
			follower.Update(hazard.Nominal)
			Expect(follower.LastCommands()).To(HaveLen(1))

			follower.SetManualOverride(true)
			follower.Update(hazard.Nominal)
			Expect(follower.LastCommands()).To(BeEmpty())
		})
	})

	Context("acoustic link", func() {
		var (
			clock     *core.ManualClock
			network   *acoustic.Network
			leader    *controllers.GuidanceController
			followers []*controllers.GuidanceController
		)

		BeforeEach(func() {
			clock = core.NewManualClock(time.Unix(0, 0))
			network = acoustic.NewNetwork(clock, nil, 1)
			link := acoustic.ChannelSettings{Delay: 500 * time.Millisecond}

			leaderModem, err := network.Join(link)
			Expect(err).ToNot(HaveOccurred())
			leader = controllers.NewLeader(0, newFakeVehicle(3, 0, 4), leaderModem, settings)

			followers = nil
			for i := 1; i <= 2; i++ {
				m, err := network.Join(link)
				Expect(err).ToNot(HaveOccurred())
				followers = append(followers, controllers.NewFollower(acoustic.NodeID(i), newFakeVehicle(0, -10, 0), m, leaderModem, settings))
			}
			leader.UpdateDirectory(network.Directory())
		})

		It("should give each follower one leader fix after the delay", func() {
			Expect(leader.Broadcast()).To(Equal(2))

			for _, f := range followers {
				Expect(f.Listen()).To(BeEmpty())
			}

			clock.Advance(500 * time.Millisecond)
			for _, f := range followers {
				packets := f.Listen()
				Expect(packets).To(HaveLen(1))
				Expect(packets[0].Kind).To(Equal(acoustic.KindPositionBroadcast))

				fix, ok := f.LeaderFix()
				Expect(ok).To(BeTrue())
				Expect(fix.Position).To(Equal(core.Vec(3, 0, 4)))
			}
			Expect(leader.Listen()).To(BeEmpty())
		})

		It("should not broadcast from a follower", func() {
			followers[0].UpdateDirectory(network.Directory())
			Expect(followers[0].Broadcast()).To(BeZero())
			Expect(network.Pending()).To(BeZero())
		})

		It("should keep no leader fix on the leader", func() {
			follower, _ := network.Modem(1)
			leaderModem, _ := network.Modem(0)
			Expect(follower.Send(leaderModem, acoustic.Vector{7, -3, 9}, acoustic.KindPositionBroadcast)).To(BeTrue())

			clock.Advance(time.Second)
			Expect(leader.Listen()).To(HaveLen(1))
			_, ok := leader.LeaderFix()
			Expect(ok).To(BeFalse())
		})

		It("should ignore broadcasts from other nodes", func() {
			other, _ := network.Modem(2)
			target, _ := network.Modem(1)
			Expect(other.Send(target, acoustic.Vector{1, 2, 3}, acoustic.KindPositionBroadcast)).To(BeTrue())

			clock.Advance(time.Second)
			Expect(followers[0].Listen()).To(HaveLen(1))
			_, ok := followers[0].LeaderFix()
			Expect(ok).To(BeFalse())
		})
	})
})
