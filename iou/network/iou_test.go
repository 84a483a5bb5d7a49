/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package network_test

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/hyperledger-labs/fsc-iou/iou/cash"
	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/iou/network"
	"github.com/hyperledger-labs/fsc-iou/iou/states"
	"github.com/hyperledger-labs/fsc-iou/iou/views"
	"github.com/hyperledger-labs/fsc-iou/pkg/api"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/finality"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/flows"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/vault"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/events"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var _ = Describe("IOU EndToEnd", func() {
	var (
		dir string
		ii  *network.Network
	)

	initiate := func(name string, v view.View) (interface{}, error) {
		return ii.Node(name).InitiateView(v)
	}

	eur := func(major int64) states.Amount {
		a, err := states.FromMajor(major, "EUR")
		Expect(err).NotTo(HaveOccurred())
		return a
	}

	identity := func(name string) view.Identity {
		return ii.Node(name).Identity()
	}

	listIOUs := func(name string) []*states.IOU {
		res, err := initiate(name, &views.ListIOUsView{})
		Expect(err).NotTo(HaveOccurred())
		return res.([]*states.IOU)
	}

	query := func(name, linearID string) (*states.IOU, error) {
		res, err := initiate(name, &views.QueryView{Query: views.Query{LinearID: linearID}})
		if err != nil {
			return nil, err
		}
		return res.(*states.IOU), nil
	}

	balance := func(name string) states.Amount {
		res, err := initiate(name, &cash.BalancesView{})
		Expect(err).NotTo(HaveOccurred())
		if b, ok := res.(map[string]states.Amount)["EUR"]; ok {
			return b
		}
		return eur(0)
	}

	issue := func(borrower, lender string, major int64) (string, *state.Transaction) {
		res, err := initiate(borrower, &views.IssueIOUView{Issue: views.Issue{Amount: eur(major), Lender: lender}})
		Expect(err).NotTo(HaveOccurred())
		tx := res.(*state.Transaction)
		outs := tx.OutputsOf(contract.IOU)
		Expect(outs).To(HaveLen(1))
		return outs[0].LinearID, tx
	}

	transfer := func(lender, linearID, newLender string) (*state.Transaction, error) {
		res, err := initiate(lender, &views.TransferIOUView{Transfer: views.Transfer{LinearID: linearID, NewLender: newLender}})
		if err != nil {
			return nil, err
		}
		return res.(*state.Transaction), nil
	}

	settle := func(borrower, linearID string, major int64) (*state.Transaction, error) {
		res, err := initiate(borrower, &views.SettleIOUView{Settle: views.Settle{LinearID: linearID, Amount: eur(major)}})
		if err != nil {
			return nil, err
		}
		return res.(*state.Transaction), nil
	}

	selfIssue := func(name string, major int64) {
		_, err := initiate(name, &cash.SelfIssueCashView{SelfIssue: cash.SelfIssue{Amount: eur(major)}})
		Expect(err).NotTo(HaveOccurred())
	}

	isFinal := func(name, txID string) {
		Expect(ii.Node(name).IsTxFinal(txID, api.WithTimeout(10*time.Second))).To(Succeed())
	}

	BeforeEach(func() {
		var err error
		dir, err = ioutil.TempDir("", "iou-e2e")
		Expect(err).NotTo(HaveOccurred())

		topology := network.NewTopology("notary", "alice", "bob", "charlie", "dave")
		topology.LoggingSpec = "error"
		topology.SessionTimeout = 3 * time.Second
		topology.NotaryTimeout = 3 * time.Second
		topology.NotaryRetries = 2
		topology.RetryDelay = 50 * time.Millisecond
		topology.RetryInterval = 200 * time.Millisecond
		confPaths, err := topology.Generate(dir)
		Expect(err).NotTo(HaveOccurred())

		ii, err = network.New(confPaths...)
		Expect(err).NotTo(HaveOccurred())
		Expect(ii.Install()).To(Succeed())

		Expect(ii.Node("bob").RegisterResponder(&rejectingResponder{}, &unwelcomeIssueView{})).To(Succeed())
		for _, name := range []string{"alice", "dave"} {
			Expect(ii.Node(name).RegisterResponder(&views.TransferIOUResponderView{}, &replayTransferView{})).To(Succeed())
		}
		Expect(ii.Start()).To(Succeed())
	})

	AfterEach(func() {
		ii.Stop()
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	Describe("an IOU", func() {
		It("is issued, transferred and settled in two payments", func() {
			linearID, tx := issue("alice", "bob", 1000)
			isFinal("bob", tx.ID())

			iou, err := query("bob", linearID)
			Expect(err).NotTo(HaveOccurred())
			Expect(iou.Lender).To(Equal(identity("bob")))
			Expect(iou.Borrower).To(Equal(identity("alice")))
			Expect(iou.Amount).To(Equal(eur(1000)))
			Expect(iou.Paid).To(Equal(eur(0)))

			tx, err = transfer("bob", linearID, "charlie")
			Expect(err).NotTo(HaveOccurred())
			isFinal("charlie", tx.ID())
			isFinal("alice", tx.ID())
			Expect(listIOUs("bob")).To(BeEmpty())
			iou, err = query("charlie", linearID)
			Expect(err).NotTo(HaveOccurred())
			Expect(iou.Lender).To(Equal(identity("charlie")))

			selfIssue("alice", 1000)
			Expect(balance("alice")).To(Equal(eur(1000)))

			tx, err = settle("alice", linearID, 400)
			Expect(err).NotTo(HaveOccurred())
			isFinal("charlie", tx.ID())
			iou, err = query("charlie", linearID)
			Expect(err).NotTo(HaveOccurred())
			Expect(iou.Paid).To(Equal(eur(400)))
			Expect(iou.Remaining()).To(Equal(eur(600)))
			Expect(balance("alice")).To(Equal(eur(600)))
			Expect(balance("charlie")).To(Equal(eur(400)))

			tx, err = settle("alice", linearID, 600)
			Expect(err).NotTo(HaveOccurred())
			isFinal("charlie", tx.ID())
			Expect(listIOUs("alice")).To(BeEmpty())
			Expect(listIOUs("charlie")).To(BeEmpty())
			Expect(balance("alice")).To(Equal(eur(0)))
			Expect(balance("charlie")).To(Equal(eur(1000)))

			_, err = query("alice", linearID)
			Expect(errors.Is(err, state.ErrNotFound)).To(BeTrue(), "%v", err)
		})

		It("cannot be settled beyond its amount or without cash", func() {
			linearID, _ := issue("alice", "bob", 100)

			_, err := settle("alice", linearID, 50)
			Expect(errors.Is(err, state.ErrInsufficientFunds)).To(BeTrue(), "%v", err)

			selfIssue("alice", 500)
			_, err = settle("alice", linearID, 200)
			Expect(errors.Is(err, state.ErrValidation)).To(BeTrue(), "%v", err)

			_, err = settle("bob", linearID, 50)
			Expect(errors.Is(err, state.ErrValidation)).To(BeTrue(), "%v", err)
			Expect(err.Error()).To(ContainSubstring("must be initiated by the borrower"))

			Expect(balance("alice")).To(Equal(eur(500)))
			iou, err := query("bob", linearID)
			Expect(err).NotTo(HaveOccurred())
			Expect(iou.Paid).To(Equal(eur(0)))
		})

		It("can only be transferred by its lender to a known party", func() {
			linearID, _ := issue("alice", "bob", 100)

			_, err := transfer("alice", linearID, "charlie")
			Expect(errors.Is(err, state.ErrValidation)).To(BeTrue(), "%v", err)

			_, err = transfer("bob", linearID, "mallory")
			Expect(errors.Is(err, state.ErrValidation)).To(BeTrue(), "%v", err)
			Expect(err.Error()).To(ContainSubstring("cannot be found"))

			_, err = transfer("bob", "unknown-id", "charlie")
			Expect(errors.Is(err, state.ErrNotFound)).To(BeTrue(), "%v", err)
		})
	})

	Describe("double spending", func() {
		It("is refused by the notary for a consumed version", func() {
			linearID, _ := issue("alice", "bob", 100)
			v, err := vault.GetVault(ii.Node("bob").Registry())
			Expect(err).NotTo(HaveOccurred())
			old, err := v.LookupCurrent(contract.IOU, linearID)
			Expect(err).NotTo(HaveOccurred())

			winner, err := transfer("bob", linearID, "charlie")
			Expect(err).NotTo(HaveOccurred())

			_, err = initiate("bob", &replayTransferView{input: old, newLender: identity("dave")})
			Expect(errors.Is(err, state.ErrConflict)).To(BeTrue(), "%v", err)
			conflict := &state.ConflictError{}
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.ConsumingTx).To(Equal(winner.ID()))
			Expect(conflict.Ref).To(Equal(old.Ref))

			Expect(listIOUs("dave")).To(BeEmpty())
			iou, err := query("charlie", linearID)
			Expect(err).NotTo(HaveOccurred())
			Expect(iou.Lender).To(Equal(identity("charlie")))
		})

		It("lets exactly one of two concurrent transfers of the same IOU through", func() {
			linearID, _ := issue("alice", "bob", 100)

			var wg sync.WaitGroup
			var succeeded atomic.Int32
			errs := make([]error, 2)
			for i, newLender := range []string{"charlie", "dave"} {
				wg.Add(1)
				go func(i int, newLender string) {
					defer GinkgoRecover()
					defer wg.Done()
					_, errs[i] = transfer("bob", linearID, newLender)
					if errs[i] == nil {
						succeeded.Inc()
					}
				}(i, newLender)
			}
			wg.Wait()

			Expect(succeeded.Load()).To(Equal(int32(1)))
			for _, err := range errs {
				if err != nil {
					Expect(errors.Is(err, state.ErrNotFound) || errors.Is(err, state.ErrValidation)).To(BeTrue(), "%v", err)
				}
			}
			Expect(len(listIOUs("charlie")) + len(listIOUs("dave"))).To(Equal(1))
		})
	})

	Describe("a forged input", func() {
		It("is refused by the counterparties and never reaches the ledgers", func() {
			linearID, _ := issue("alice", "bob", 1000)
			v, err := vault.GetVault(ii.Node("bob").Registry())
			Expect(err).NotTo(HaveOccurred())
			current, err := v.LookupCurrent(contract.IOU, linearID)
			Expect(err).NotTo(HaveOccurred())

			// same reference, a thousandfold obligation
			inflated := &states.IOU{}
			Expect(current.State.Unmarshal(inflated)).To(Succeed())
			inflated.Amount = eur(1000000)
			forged := *current
			forged.State.Data, err = json.Marshal(inflated)
			Expect(err).NotTo(HaveOccurred())

			_, err = initiate("bob", &replayTransferView{input: &forged, newLender: identity("dave")})
			Expect(errors.Is(err, state.ErrCounterpartyRejected)).To(BeTrue(), "%v", err)
			rejection := &state.RejectionError{}
			Expect(errors.As(err, &rejection)).To(BeTrue())
			var refusing []view.Identity
			for _, r := range rejection.Rejections {
				Expect(r.Reason).To(ContainSubstring("differs from the committed output"))
				refusing = append(refusing, r.Party)
			}
			Expect(refusing).To(ConsistOf(identity("alice"), identity("dave")))

			Expect(listIOUs("dave")).To(BeEmpty())
			owed, err := query("alice", linearID)
			Expect(err).NotTo(HaveOccurred())
			Expect(owed.Amount).To(Equal(eur(1000)))
			Expect(owed.Lender).To(Equal(identity("bob")))

			// the genuine version still moves
			_, err = transfer("bob", linearID, "dave")
			Expect(err).NotTo(HaveOccurred())
			owed, err = query("dave", linearID)
			Expect(err).NotTo(HaveOccurred())
			Expect(owed.Amount).To(Equal(eur(1000)))
		})
	})

	Describe("a rejection", func() {
		It("fails the attempt without touching the ledgers", func() {
			_, err := initiate("alice", &unwelcomeIssueView{lender: identity("bob"), amount: eur(10)})
			Expect(errors.Is(err, state.ErrCounterpartyRejected)).To(BeTrue(), "%v", err)
			rejection := &state.RejectionError{}
			Expect(errors.As(err, &rejection)).To(BeTrue())
			Expect(rejection.Rejections).To(HaveLen(1))
			Expect(rejection.Rejections[0].Party).To(Equal(identity("bob")))
			Expect(rejection.Rejections[0].Reason).To(ContainSubstring("not today"))

			Expect(listIOUs("alice")).To(BeEmpty())
			Expect(listIOUs("bob")).To(BeEmpty())
			recorder, err := flows.GetRecorder(ii.Node("alice").Registry())
			Expect(err).NotTo(HaveOccurred())
			records, err := recorder.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal(flows.Failed))

			// other flows between the same parties are not affected
			issue("alice", "bob", 10)
			Expect(listIOUs("bob")).To(HaveLen(1))
		})
	})

	Describe("distribution", func() {
		It("ignores the redelivery of a committed transaction", func() {
			_, tx := issue("alice", "bob", 100)
			isFinal("bob", tx.ID())

			subscriber, err := events.GetSubscriber(ii.Node("bob").Registry())
			Expect(err).NotTo(HaveOccurred())
			var received atomic.Int32
			var listener events.ListenerFunc = func(events.Event) { received.Inc() }
			subscriber.Subscribe(finality.CommittedTopic, &listener)
			defer subscriber.Unsubscribe(finality.CommittedTopic, &listener)

			_, err = initiate("alice", finality.NewDeliverView(tx, identity("bob")))
			Expect(err).NotTo(HaveOccurred())
			Expect(received.Load()).To(Equal(int32(0)))
			Expect(listIOUs("bob")).To(HaveLen(1))
		})
	})

	Describe("a party going offline", func() {
		It("times out the flows it must sign and rejoins", func() {
			linearID, _ := issue("alice", "bob", 100)
			Expect(ii.StopNode("charlie")).To(Succeed())

			_, err := transfer("bob", linearID, "charlie")
			Expect(errors.Is(err, state.ErrSessionTimeout)).To(BeTrue(), "%v", err)
			Expect(state.IsRetryable(err)).To(BeTrue())
			iou, err := query("bob", linearID)
			Expect(err).NotTo(HaveOccurred())
			Expect(iou.Lender).To(Equal(identity("bob")))

			Expect(ii.Restart("charlie")).To(Succeed())
			tx, err := transfer("bob", linearID, "charlie")
			Expect(err).NotTo(HaveOccurred())
			isFinal("charlie", tx.ID())
		})
	})

	Describe("a crash", func() {
		It("keeps the committed states and the notary decisions", func() {
			linearID, _ := issue("alice", "bob", 100)
			v, err := vault.GetVault(ii.Node("bob").Registry())
			Expect(err).NotTo(HaveOccurred())
			old, err := v.LookupCurrent(contract.IOU, linearID)
			Expect(err).NotTo(HaveOccurred())
			_, err = transfer("bob", linearID, "charlie")
			Expect(err).NotTo(HaveOccurred())
			selfIssue("alice", 500)

			for _, name := range []string{"notary", "alice", "bob", "charlie"} {
				Expect(ii.Restart(name)).To(Succeed())
			}
			Expect(ii.Node("alice").RegisterResponder(&views.TransferIOUResponderView{}, &replayTransferView{})).To(Succeed())

			iou, err := query("charlie", linearID)
			Expect(err).NotTo(HaveOccurred())
			Expect(iou.Lender).To(Equal(identity("charlie")))
			Expect(balance("alice")).To(Equal(eur(500)))

			_, err = initiate("bob", &replayTransferView{input: old, newLender: identity("dave")})
			Expect(errors.Is(err, state.ErrConflict)).To(BeTrue(), "%v", err)

			_, err = settle("alice", linearID, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(balance("charlie")).To(Equal(eur(100)))
		})

		It("resumes the attempts left waiting for the notary", func() {
			Expect(ii.StopNode("notary")).To(Succeed())
			_, err := initiate("alice", &views.IssueIOUView{Issue: views.Issue{Amount: eur(100), Lender: "bob"}})
			Expect(errors.Is(err, state.ErrNotaryUnavailable)).To(BeTrue(), "%v", err)

			recorder, err := flows.GetRecorder(ii.Node("alice").Registry())
			Expect(err).NotTo(HaveOccurred())
			pending, err := recorder.Pending()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].Status).To(Equal(flows.Notarizing))

			Expect(ii.Restart("notary")).To(Succeed())
			Expect(ii.Restart("alice")).To(Succeed())

			Expect(listIOUs("alice")).To(HaveLen(1))
			Eventually(func() int { return len(listIOUs("bob")) }, 10*time.Second, 100*time.Millisecond).Should(Equal(1))
			recorder, err = flows.GetRecorder(ii.Node("alice").Registry())
			Expect(err).NotTo(HaveOccurred())
			pending, err = recorder.Pending()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())
		})
	})
})
