// Example: Full Delegation Lifecycle
//
// Demonstrates the end-to-end flow across the core's five systems:
//   1. Mint a root DCT from an orchestrator to a coder
//   2. Attenuate it once more, handing a narrower scope to a reviewer
//   3. Verify the attenuated token against a concrete request
//   4. Record the chain in the chain store and check its structural integrity
//   5. Sign a task contract and verify an output against it
//   6. Record a completion attestation and read back a trust score
//   7. Revoke a block and watch verification start failing, gossiping the
//      revocation to a second node over an in-process NATS server
//   8. Trip and recover a circuit breaker after repeated failures
//
// cmd/demo does not stand up a real NATS server — it runs an embedded,
// in-process one, matching a library demo rather than a deployable service.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/dataparency-dev/delegation-core/internal/attestation"
	"github.com/dataparency-dev/delegation-core/internal/breaker"
	"github.com/dataparency-dev/delegation-core/internal/chain"
	"github.com/dataparency-dev/delegation-core/internal/contract"
	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/dct"
	"github.com/dataparency-dev/delegation-core/internal/logging"
	"github.com/dataparency-dev/delegation-core/internal/revocation"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

func main() {
	logger := logging.Default()
	now := time.Now().UTC()
	nowStr := func(d time.Duration) string { return now.Add(d).Format(time.RFC3339) }

	// ═══════════════════════════════════════════════════════════════
	// STEP 1: Mint a root DCT
	// Uses: crypto.GenerateKeypair, dct.CreateDCT
	// ═══════════════════════════════════════════════════════════════

	orchestrator, err := crypto.GenerateKeypair("orchestrator")
	if err != nil {
		log.Fatalf("generate orchestrator keypair: %v", err)
	}
	coder, err := crypto.GenerateKeypair("coder")
	if err != nil {
		log.Fatalf("generate coder keypair: %v", err)
	}
	reviewer, err := crypto.GenerateKeypair("reviewer")
	if err != nil {
		log.Fatalf("generate reviewer keypair: %v", err)
	}

	chainStore := chain.NewStore()
	rootDelegationID, err := chain.GenerateDelegationID()
	if err != nil {
		log.Fatalf("generate root delegation id: %v", err)
	}

	contractSpec := contract.VerificationSpec{
		Method: types.VerifyDeterministic,
		CheckName: "field_exists",
		CheckParams: map[string]any{"fields": []any{"summary"}},
	}
	taskContract, err := contract.CreateContract(
		orchestrator.Private, types.PrincipalID(orchestrator.PrincipalID()),
		contract.TaskSpec{
			Title:       "Review PR",
			Description: "review and summarize the PR",
			Input:       map[string]any{"complexity": 3.0},
		},
		contractSpec,
		contract.Constraints{
			MaxBudgetMicrocents:  500_000,
			Deadline:             nowStr(24 * time.Hour),
			MaxChainDepth:        3,
			RequiredCapabilities: []string{"repo"},
		},
		now.Format(time.RFC3339),
	)
	if err != nil {
		log.Fatalf("create contract: %v", err)
	}

	rootToken, err := dct.CreateDCT(dct.CreateParams{
		IssuerPrivateKey: orchestrator.Private,
		Issuer:           types.PrincipalID(orchestrator.PrincipalID()),
		Delegatee:        types.PrincipalID(coder.PrincipalID()),
		Capabilities: []types.Capability{
			{Namespace: "repo", Action: "write", Resource: "pr/**"},
			{Namespace: "repo", Action: "read", Resource: "**"},
		},
		ContractID:          taskContract.ID,
		DelegationID:        rootDelegationID,
		ChainDepth:          0,
		MaxChainDepth:       5,
		MaxBudgetMicrocents: 500_000,
		ExpiresAt:           nowStr(24 * time.Hour),
		IssuedAt:            now.Format(time.RFC3339),
	})
	if err != nil {
		log.Fatalf("create root DCT: %v", err)
	}
	chainStore.Put(chain.Delegation{
		ID: rootDelegationID, ParentID: types.RootDelegationID,
		From: types.PrincipalID(orchestrator.PrincipalID()), To: types.PrincipalID(coder.PrincipalID()),
		Depth: 0, Status: types.DelegationActive, ContractID: taskContract.ID,
		CreatedAt: now.Format(time.RFC3339),
	})
	logger.Printf("minted root DCT, delegation %s", rootDelegationID)

	// ═══════════════════════════════════════════════════════════════
	// STEP 2: Attenuate — coder hands a narrower review-only scope to reviewer
	// Uses: dct.AttenuateDCT
	// ═══════════════════════════════════════════════════════════════

	childDelegationID, err := chain.GenerateDelegationID()
	if err != nil {
		log.Fatalf("generate child delegation id: %v", err)
	}
	attenuatedToken, err := dct.AttenuateDCT(dct.AttenuateParams{
		Parent:               rootToken,
		AttenuatorPrivateKey: coder.Private,
		Attenuator:           types.PrincipalID(coder.PrincipalID()),
		Delegatee:            types.PrincipalID(reviewer.PrincipalID()),
		DelegationID:         childDelegationID,
		ContractID:           taskContract.ID,
		AllowedCapabilities: []types.Capability{
			{Namespace: "repo", Action: "read", Resource: "pr/**"},
		},
	})
	if err != nil {
		log.Fatalf("attenuate DCT: %v", err)
	}
	chainStore.Put(chain.Delegation{
		ID: childDelegationID, ParentID: rootDelegationID,
		From: types.PrincipalID(coder.PrincipalID()), To: types.PrincipalID(reviewer.PrincipalID()),
		Depth: 1, Status: types.DelegationActive, ContractID: taskContract.ID,
		CreatedAt: now.Format(time.RFC3339),
	})
	logger.Printf("attenuated DCT, delegation %s", childDelegationID)

	// ═══════════════════════════════════════════════════════════════
	// STEP 3: Verify the attenuated token against a concrete request
	// Uses: dct.VerifyDCT
	// ═══════════════════════════════════════════════════════════════

	localRevocations := revocation.NewLocalStore(logger)
	scope, denial := dct.VerifyDCT(attenuatedToken, dct.VerifyContext{
		Resource:      "pr/142/diff.patch",
		Operation:     "read",
		Namespace:     "repo",
		Now:           now.Format(time.RFC3339),
		RootPublicKey: types.PrincipalID(orchestrator.PrincipalID()),
		RevocationIDs: localRevocations.GetRevocationIDs(),
	})
	if denial != nil {
		log.Fatalf("unexpected denial: %v", denial)
	}
	logger.Printf("verified: chain depth %d, remaining budget %d", scope.ChainDepth, scope.RemainingBudgetMicrocents)

	// ═══════════════════════════════════════════════════════════════
	// STEP 4: Check chain structural integrity
	// Uses: chain.Store.VerifyChain
	// ═══════════════════════════════════════════════════════════════

	result := chainStore.VerifyChain(childDelegationID)
	logger.Printf("chain valid: %v", result.Valid)

	// ═══════════════════════════════════════════════════════════════
	// STEP 5: Verify the reviewer's output against the task contract
	// Uses: contract.VerifyOutput
	// ═══════════════════════════════════════════════════════════════

	registry := contract.NewCheckFunctionRegistry()
	output := map[string]any{"summary": "LGTM, two nits addressed in a follow-up.", "exitCode": 0.0}
	checkResult, err := contract.VerifyOutput(taskContract.Verification, output, registry)
	if err != nil {
		log.Fatalf("verify output: %v", err)
	}
	logger.Printf("contract verification passed: %v", checkResult.Passed)

	// ═══════════════════════════════════════════════════════════════
	// STEP 6: Record a completion attestation and read the trust score
	// Uses: attestation.CreateCompletionAttestation, attestation.Engine
	// ═══════════════════════════════════════════════════════════════

	score := 1.0
	att, err := attestation.CreateCompletionAttestation(
		reviewer.Private, types.PrincipalID(reviewer.PrincipalID()),
		taskContract.ID, childDelegationID, checkResult.Passed,
		&attestation.VerificationOutcome{Passed: checkResult.Passed, Score: &score},
		42_000, nil, now.Format(time.RFC3339),
	)
	if err != nil {
		log.Fatalf("create attestation: %v", err)
	}
	if !attestation.VerifyAttestationSignature(att, types.PrincipalID(reviewer.PrincipalID())) {
		log.Fatalf("attestation signature did not verify")
	}

	trustEngine := attestation.NewEngine(attestation.EngineConfig{})
	nowMs := attestation.NowMs(now)
	trustEngine.RecordOutcome(types.PrincipalID(reviewer.PrincipalID()), att, nowMs)
	trust := trustEngine.GetScore(types.PrincipalID(reviewer.PrincipalID()), nowMs)
	logger.Printf("reviewer trust composite=%.3f confidence=%.3f", trust.Composite, trust.Confidence)

	if err := chainStore.UpdateStatus(childDelegationID, types.DelegationCompleted, att.ID, now.Format(time.RFC3339)); err != nil {
		log.Fatalf("update delegation status: %v", err)
	}

	// ═══════════════════════════════════════════════════════════════
	// STEP 7: Revoke the child block; gossip it to a peer node over an
	// in-process NATS server; verification then denies the same request
	// Uses: revocation.Entry, revocation.DistributedStore
	// ═══════════════════════════════════════════════════════════════

	ns, err := startEmbeddedNATS()
	if err != nil {
		log.Fatalf("start embedded NATS: %v", err)
	}
	defer ns.Shutdown()

	connA, connB, err := dialTwoClients(ns)
	if err != nil {
		log.Fatalf("dial NATS clients: %v", err)
	}
	defer connA.Close()
	defer connB.Close()

	nodeA, err := revocation.NewDistributedStore(revocation.DistributedConfig{SelfID: "node-a", Conn: connA, Logger: logger})
	if err != nil {
		log.Fatalf("new distributed store node-a: %v", err)
	}
	defer nodeA.Close()
	nodeB, err := revocation.NewDistributedStore(revocation.DistributedConfig{SelfID: "node-b", Conn: connB, Logger: logger})
	if err != nil {
		log.Fatalf("new distributed store node-b: %v", err)
	}
	defer nodeB.Close()
	if err := nodeA.AddPeer("node-b"); err != nil {
		log.Fatalf("add peer: %v", err)
	}

	ids, err := dct.AllRevocationIDs(mustDeserialize(attenuatedToken))
	if err != nil {
		log.Fatalf("compute revocation ids: %v", err)
	}
	childBlockRevocationID := ids[len(ids)-1]

	entry, err := revocation.NewEntry(coder.Private, types.PrincipalID(coder.PrincipalID()),
		childBlockRevocationID, now.Format(time.RFC3339), revocation.ScopeBlock)
	if err != nil {
		log.Fatalf("new revocation entry: %v", err)
	}
	if err := nodeA.Revoke(entry); err != nil {
		log.Fatalf("revoke: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	waitForRevocation(ctx, nodeB, childBlockRevocationID)

	_, denial = dct.VerifyDCT(attenuatedToken, dct.VerifyContext{
		Resource:      "pr/142/diff.patch",
		Operation:     "read",
		Namespace:     "repo",
		Now:           now.Format(time.RFC3339),
		RootPublicKey: types.PrincipalID(orchestrator.PrincipalID()),
		RevocationIDs: nodeB.GetRevocationIDs(),
	})
	if denial == nil || denial.Code != dct.DenialRevoked {
		log.Fatalf("expected DenialRevoked after gossip, got %v", denial)
	}
	logger.Printf("revocation gossiped to node-b, verification now denies: %s", denial.Code)

	// ═══════════════════════════════════════════════════════════════
	// STEP 8: Circuit breaker trips after repeated failures, recovers
	// after its cooldown
	// Uses: breaker.Breaker
	// ═══════════════════════════════════════════════════════════════

	cb := breaker.New(types.PrincipalID(coder.PrincipalID()), breaker.Config{
		FailureThreshold: 3,
		ResetTimeout:     10 * time.Millisecond,
	})
	for i := 0; i < 3; i++ {
		cb.RecordFailure(now)
	}
	logger.Printf("breaker state after 3 failures: %s, allowed=%v", cb.State(), cb.IsAllowed(now))
	time.Sleep(20 * time.Millisecond)
	logger.Printf("breaker allowed after cooldown (half-open probe): %v", cb.IsAllowed(time.Now()))
	cb.RecordSuccess()
	logger.Printf("breaker state after successful probe: %s", cb.State())
}

func mustDeserialize(s dct.Serialized) *dct.Token {
	tok, err := dct.Deserialize(s)
	if err != nil {
		log.Fatalf("deserialize token: %v", err)
	}
	return tok
}

func startEmbeddedNATS() (*server.Server, error) {
	opts := &server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("new embedded server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(4 * time.Second) {
		return nil, fmt.Errorf("embedded NATS server did not become ready")
	}
	return ns, nil
}

func dialTwoClients(ns *server.Server) (*nats.Conn, *nats.Conn, error) {
	connA, err := nats.Connect(ns.ClientURL())
	if err != nil {
		return nil, nil, fmt.Errorf("connect node-a: %w", err)
	}
	connB, err := nats.Connect(ns.ClientURL())
	if err != nil {
		connA.Close()
		return nil, nil, fmt.Errorf("connect node-b: %w", err)
	}
	return connA, connB, nil
}

func waitForRevocation(ctx context.Context, store *revocation.DistributedStore, id string) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if store.IsRevoked(id) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
