// Command slipstream runs the media processing daemon and the tooling for
// admitting files, inspecting job records, and recovering stale uploads.
package main
