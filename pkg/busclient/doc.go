// Package busclient connects a turnout panel to an LCC/OpenLCB bus
// over a TCP GridConnect hub.
//
// # Overview
//
// The client speaks the CAN adaptation of OpenLCB in GridConnect text
// framing (":X<8 hex header>N<data hex>;"). On Connect it performs the
// standard alias reservation sequence (CID1..CID4, RID, AMD) and sends
// an initialization-complete message, then starts a read loop on its
// own goroutine.
//
// Incoming event reports and producer-identified messages are
// delivered through callbacks. Outbound traffic is limited to event
// reports (turnout commands), producer queries (state refresh) and
// consumer-identified replies for the panel's registered events.
//
// # Usage
//
//	client := busclient.New(busclient.Config{NodeID: nodeID})
//	client.OnReport(router.OnReport)
//	client.OnProducerIdentified(router.OnProducerIdentified)
//	if err := client.Connect(ctx, "hub.local:12021"); err != nil {
//		...
//	}
//	defer client.Close()
//
// Hubs can be located on the local network with FindHub, which browses
// for the "_openlcb-can._tcp" mDNS service.
package busclient
