// Package cache implements the tiered, content-addressed artifact cache.
//
// A Store holds an ordered list of tiers. Tier 0 is always the local
// filesystem; further tiers (the S3 object store) are optional. Get probes
// tiers in order and copies a hit back into every earlier tier that missed,
// so the next lookup is served locally. Put writes tier 0 and treats every
// later tier as best effort.
//
// Local entries are single files holding a CBOR envelope whose body may be
// compressed. Files are written through a temp file and a rename.
package cache
