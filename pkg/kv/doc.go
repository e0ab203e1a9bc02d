/*
Package kv implements the ordered-set engine: the sharded, generation-
versioned sorted map that backs every other modality in the system.

# Architecture

	┌───────────────────────── Engine ─────────────────────────┐
	│                                                            │
	│   structural lock (collection create/drop/list)           │
	│                                                            │
	│   ┌──────────────┐   ┌──────────────┐   ┌──────────────┐  │
	│   │ collection    │   │ collection    │   │ collection    │  │
	│   │ "main"        │   │ "users"       │   │ "..."         │  │
	│   │               │   │               │   │               │  │
	│   │ 64 shards,    │   │ 64 shards,    │   │ 64 shards,    │  │
	│   │ each an       │   │ each an       │   │ each an       │  │
	│   │ ordered btree │   │ ordered btree │   │ ordered btree │  │
	│   │ of versioned  │   │ of versioned  │   │ of versioned  │  │
	│   │ items         │   │ items         │   │ items         │  │
	│   └──────────────┘   └──────────────┘   └──────────────┘  │
	└────────────────────────────────────────────────────────────┘

Each key hashes to one of 64 shards within its collection; the shard's
read-write lock serializes writers and allows concurrent readers. A global
generation counter is advanced once per committed batch (HEAD write or
transaction commit), and every version of every entry carries the
generation at which it became visible, so a Snapshot pinned at generation G
can keep resolving reads against G long after newer generations commit.

Collections are independent ordered maps identified by an opaque Handle;
the distinguished "main" collection always exists at the reserved handle
MainCollection.
*/
package kv
