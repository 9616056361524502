/*

Package privval decides whether a consensus message may be signed and runs
the signing pipeline around that decision.

Guard

Guard keeps one high-water-mark (HWM) per chain: the last slot
(height/round/pol_round/type) that was signed. A slot is approved only when
it is strictly greater than the HWM. Reserve holds the chain's exclusive
scope until the reservation is committed or released, so two requests for
the same chain can never both observe an approval.

Store

Store persists the HWMs. FileStore keeps one text record per chain and
replaces it atomically. DBStore keeps all records in a tm-db database.

KMS

KMS runs a single request through validate, canonicalize, guard check,
sign, commit and attach. A signature is only returned once the matching HWM
is durable.

*/
package privval
