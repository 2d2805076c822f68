// Package reactor is a small single-goroutine cooperative scheduler built on
// Linux epoll.
//
// A Loop owns an edge-triggered epoll instance, a FIFO run queue of tasks and
// a timer heap. Tasks are polled until they report Complete; a task that
// cannot make progress parks itself by keeping the Waker from its Context and
// returning Pending. Sources registered with the loop are told about
// readiness changes and decide which parked task to wake.
//
// Everything except the context passed to BlockOn is confined to the
// goroutine running the loop.
//
//	loop, err := reactor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	err = loop.BlockOn(ctx, reactor.Select(task, loop.After(5*time.Second)))
package reactor
