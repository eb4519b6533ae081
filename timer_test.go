package gamenet

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
)

type TimerTestSuite struct {
	gamenetTestSuite
	clk *clock.Mock
	svc *timerService

	mu    sync.Mutex
	fired []uint16
}

func (suite *TimerTestSuite) SetupTest() {
	suite.clk = clock.NewMock()
	suite.svc = newTimerService(suite.clk)
	suite.svc.start()
	suite.fired = nil
}

func (suite *TimerTestSuite) TearDownTest() {
	suite.svc.stop()
}

func (suite *TimerTestSuite) record(seq uint16) {
	suite.mu.Lock()
	defer suite.mu.Unlock()
	suite.fired = append(suite.fired, seq)
}

func (suite *TimerTestSuite) firedSeqs() []uint16 {
	suite.mu.Lock()
	defer suite.mu.Unlock()
	out := make([]uint16, len(suite.fired))
	copy(out, suite.fired)
	return out
}

// advanceUntil steps the mock clock forward until cond holds.
func (suite *TimerTestSuite) advanceUntil(cond func() bool) {
	suite.Eventually(func() bool {
		suite.clk.Add(5 * time.Millisecond)
		return cond()
	}, 2*time.Second, time.Millisecond)
}

func (suite *TimerTestSuite) TestFiresAfterDeadline() {
	suite.svc.schedule(1, 50*time.Millisecond, suite.record)
	suite.Empty(suite.firedSeqs())
	suite.advanceUntil(func() bool { return len(suite.firedSeqs()) == 1 })
	suite.Equal([]uint16{1}, suite.firedSeqs())
}

func (suite *TimerTestSuite) TestCancelPreventsCallback() {
	suite.svc.schedule(1, 30*time.Millisecond, suite.record)
	suite.svc.schedule(2, 60*time.Millisecond, suite.record)
	suite.svc.cancel(1)
	suite.advanceUntil(func() bool { return len(suite.firedSeqs()) == 1 })
	suite.Equal([]uint16{2}, suite.firedSeqs())
}

func (suite *TimerTestSuite) TestFiresInDeadlineOrder() {
	suite.svc.schedule(9, 30*time.Millisecond, suite.record)
	suite.svc.schedule(4, 10*time.Millisecond, suite.record)
	suite.advanceUntil(func() bool { return len(suite.firedSeqs()) == 2 })
	suite.Equal([]uint16{4, 9}, suite.firedSeqs())
}

func (suite *TimerTestSuite) TestSimultaneousDeadlinesFireAscending() {
	suite.svc.schedule(7, 50*time.Millisecond, suite.record)
	suite.svc.schedule(3, 50*time.Millisecond, suite.record)
	suite.svc.schedule(5, 50*time.Millisecond, suite.record)
	suite.advanceUntil(func() bool { return len(suite.firedSeqs()) == 3 })
	suite.Equal([]uint16{3, 5, 7}, suite.firedSeqs())
}

func (suite *TimerTestSuite) TestRescheduleReplacesDeadline() {
	suite.svc.schedule(1, 20*time.Millisecond, func(uint16) { suite.FailNow("replaced timer fired") })
	suite.svc.schedule(1, 60*time.Millisecond, suite.record)
	suite.advanceUntil(func() bool { return len(suite.firedSeqs()) == 1 })
	suite.Equal([]uint16{1}, suite.firedSeqs())
}

func (suite *TimerTestSuite) TestScheduleAfterStopIsIgnored() {
	suite.svc.stop()
	suite.svc.schedule(1, time.Millisecond, suite.record)
	suite.clk.Add(10 * time.Millisecond)
	suite.Empty(suite.firedSeqs())
}

func (suite *TimerTestSuite) TestNowMillisAdvancesWithClock() {
	before := suite.svc.nowMillis()
	suite.clk.Add(250 * time.Millisecond)
	suite.Equal(before+250, suite.svc.nowMillis())
}

func TestTimerService(t *testing.T) {
	suite.Run(t, &TimerTestSuite{})
}
