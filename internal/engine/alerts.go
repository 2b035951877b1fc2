package engine

// consumeAlerts is the engine's single alert-consumer goroutine, bridging
// t.SubscribePieceStateChanges() into the scheduler's wake mechanism so
// every blocked Read wakes up to re-check its range whenever any piece
// completes, and into seeding-state detection.
func (e *Engine) consumeAlerts() {
	sub := e.t.SubscribePieceStateChanges()
	defer sub.Close()

	for {
		select {
		case <-e.stopAlert:
			return
		case psc, ok := <-sub.Values:
			if !ok {
				return
			}
			if psc.Complete {
				e.waiter.Notify()
				e.maybeTransitionToSeeding()
			}
		}
	}
}

// maybeTransitionToSeeding flips state to seeding once every piece is
// complete, using the State values defined in engine.go.
func (e *Engine) maybeTransitionToSeeding() {
	if e.t.Info() == nil {
		return
	}
	if e.t.BytesCompleted() < e.t.Info().TotalLength() {
		return
	}
	e.mu.Lock()
	if e.state == StateDownloading {
		e.state = StateSeeding
	}
	e.mu.Unlock()
}
