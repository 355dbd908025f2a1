// Package bridge connects controller devices to exposed accessories.
//
// It owns three pieces:
//
//   - Orchestrator reads and writes properties through the controller,
//     keeping the per-accessory state cache current.
//   - Poller refreshes every accessory on a fixed interval and pushes the
//     values to the characteristics without echoing them back as writes.
//   - Bridge discovers devices, restores persisted accessories, binds
//     characteristic handlers and manages the lifecycle of the above.
//
// # Data Flow
//
//	┌──────────────┐  get/set   ┌──────────────┐  HTTP   ┌────────────┐
//	│ Accessories  │◄──────────►│ Orchestrator │◄───────►│ Controller │
//	└──────▲───────┘            └──────▲───────┘         └────────────┘
//	       │ push (suppressed)         │ fetch
//	       └───────────── Poller ──────┘
//
// # Consistency
//
// Fetches and writes for one accessory are serialised by a per-accessory
// lock. Writes update the cache optimistically, then the controller is
// re-read in the background so the cache converges on what the controller
// actually holds.
package bridge
